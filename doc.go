/*
FOBROB is a receiver for 433.92MHz key fob remotes which send a 10 byte
Manchester coded packet after a long on-off keyed preamble.

Decoded codes are written to latestcode.txt (overwritten) and appended to
receivedcodes.txt in the output directory, one lowercase hex code per line.
The companion command fobtx turns a stored code back into samples.

Configuration:

	-config=""

Reads a yaml configuration file. Flags given on the command line or through
the environment override values from the file. Every flag may be set from the
environment by upper casing its name and prefixing FOBROB_, for example
FOBROB_SOURCE=file.

	-source="rtltcp"

Selects the sample source: rtltcp, rtlsdr, hackrf or file. The file source
reads raw interleaved I/Q samples from -samplefile in -sampleformat, which is
one of cu8 (rtl_sdr), cs8 (hackrf_transfer) or cs16 (bladeRF SC16Q11). The
session ends at the end of the file. A samplefile of - reads stdin.

	-centerfreq=433920000 -samplerate=3890000 -tunergain=42

Tune the rtl_tcp server. The rtlsdr and hackrf sources use the same values.
A gain of 0 enables automatic gain control.

Signal Processing:

	-decimation=20

Each of I and Q is low-pass filtered and decimated by this factor. The filter
is a Hamming windowed sinc of -filtertaps taps, 4*decimation+1 by default,
with its cutoff at the decimated Nyquist rate. The demodulator sees the
squared magnitude of every decimated sample.

	-symbollength=200

Sets the symbol length in decimated samples. With the defaults one symbol is
3.89MHz / 20 * 1.01321ms, about 197. The default of 200 is well within the
preamble timing tolerance.

	SymbolLength = SampleRate / Decimation * SymbolDuration

	-minpreamble=42 -timingerror=40

A preamble locks once minpreamble consecutive edges arrive within
timingerror samples of one symbol length apart.

	-threshold=0

Fixes the on/off decision level. By default the level is halfway between
a tracked peak and noise floor.

	-policy="first"

Every code is sent twice per frame. first delivers the first valid copy,
each delivers both, match delivers only when both copies agree.

Output:

	-format="plain"

Sets the stdout encoding of decoded messages: plain, csv, json or xml. Each
message is a single line, json and xml have no root element.

	-outdir="." -sqlite="" -mqtt="" -mqtttopic="fobrob/codes"

Additional sinks. An empty outdir disables the code files. Codes published to
MQTT go to a subtopic named for the command, such as fobrob/codes/unlock.

	-unique=false -filtercmd=""

unique suppresses a code whose rolling code was just delivered. filtercmd
keeps only the listed commands, for example -filtercmd=lock,unlock.

	-metrics=""

Serves prometheus metrics on the given address, for example :9100.

	-duration=0 -single=false

duration stops the receiver after the given time, single after the first
decoded message.
*/
package main
