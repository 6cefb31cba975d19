// FOBROB - A receiver and transmitter for 433MHz vehicle key fob remotes.
// Copyright (C) 2017 The fobrob Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command fobtx renders a key fob code as I/Q samples, either to a CSV file
// for bladeRF-cli or directly through a HackRF.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/fobrob/fobrob/config"
	"github.com/fobrob/fobrob/packet"
	"github.com/fobrob/fobrob/radio/hackrf"
	"github.com/fobrob/fobrob/sink"
	"github.com/fobrob/fobrob/transmit"
)

var defaults = config.Default()

var configFile = flag.String("config", "", "yaml configuration file, flags override its values")
var sinkName = flag.String("sink", defaults.TX.Sink, "sample sink: csv or hackrf")
var latest = flag.String("latest", "", "transmit the code stored in a latestcode.txt file")

var sampleRate = flag.Float64("samplerate", defaults.TX.SampleRate, "sample rate in samples per second")
var carrier = flag.Float64("carrier", defaults.TX.CarrierFreq, "carrier offset from the tuned frequency in Hz")
var amplitude = flag.Float64("amplitude", defaults.TX.Amplitude, "carrier amplitude while keyed")
var symbol = flag.Duration("symbol", defaults.TX.Symbol, "symbol duration")
var preamble = flag.Int("preamble", defaults.TX.Frame.PreamblePairs, "preamble off/on pairs")
var occurrences = flag.Int("occurrences", defaults.TX.Frame.Occurrences, "times the code is sent per frame")

var centerFreq = flag.Uint("centerfreq", uint(defaults.Tuning.CenterFreq), "frequency of the keyed carrier for the hackrf sink")
var txVGAGain = flag.Int("txvgagain", defaults.HackRF.TXVGAGain, "hackrf tx vga gain in dB")
var amp = flag.Bool("amp", defaults.HackRF.Amp, "enable the hackrf rf amplifier")

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <hex code> [out.csv]\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "FOBROB_TX_" + strings.ToUpper(f.Name)
		if v := os.Getenv(envName); v != "" {
			if err := flag.Set(f.Name, v); err != nil {
				log.WithError(err).WithField("env", envName).Warn("environment variable failed to override flag")
			}
		}
	})
}

func LoadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sink":
			cfg.TX.Sink = strings.ToLower(*sinkName)
		case "samplerate":
			cfg.TX.SampleRate = *sampleRate
		case "carrier":
			cfg.TX.CarrierFreq = *carrier
		case "amplitude":
			cfg.TX.Amplitude = *amplitude
		case "symbol":
			cfg.TX.Symbol = *symbol
		case "preamble":
			cfg.TX.Frame.PreamblePairs = *preamble
		case "occurrences":
			cfg.TX.Frame.Occurrences = *occurrences
		case "centerfreq":
			cfg.Tuning.CenterFreq = uint32(*centerFreq)
		case "txvgagain":
			cfg.HackRF.TXVGAGain = *txVGAGain
		case "amp":
			cfg.HackRF.Amp = *amp
		}
	})

	return cfg, cfg.ValidateTX()
}

// ParseCode reads the code to transmit from the argument or the latest
// code file.
func ParseCode(arg, latestFile string) (packet.Packet, error) {
	if latestFile != "" {
		return sink.ReadLatest(latestFile)
	}

	p, err := packet.Dehexify(arg)

	var invalid packet.InvalidHexDigitError
	switch {
	case err == nil:
		return p, nil
	case xerrors.As(err, &invalid):
		return p, xerrors.Errorf("digit %d of the code is %q: %w", invalid.Offset+1, invalid.Char, err)
	}
	return p, xerrors.Errorf("parsing code: %w", err)
}

// A closingSink is a sample sink which must be flushed when the frame is
// complete.
type closingSink interface {
	transmit.SampleSink
	Close() error
}

type csvFile struct {
	*transmit.CSVSink
	c io.Closer
}

func (f csvFile) Close() error {
	if err := f.Flush(); err != nil {
		f.c.Close()
		return err
	}
	return f.c.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openSink(cfg config.Config, out string) (closingSink, error) {
	if cfg.TX.Sink == "hackrf" {
		// Tune below the carrier so it lands on the centre frequency.
		freq := uint64(cfg.Tuning.CenterFreq) - uint64(cfg.TX.CarrierFreq)
		return hackrf.OpenTransmitter(freq, int(cfg.TX.SampleRate), cfg.TX.Amplitude, hackrf.Options{
			TXVGAGain: cfg.HackRF.TXVGAGain,
			Amp:       cfg.HackRF.Amp,
		})
	}

	if out == "" || out == "-" {
		return csvFile{transmit.NewCSVSink(os.Stdout), nopCloser{}}, nil
	}

	f, err := os.Create(out)
	if err != nil {
		return nil, errors.Wrap(err, "creating sample file")
	}
	return csvFile{transmit.NewCSVSink(f), f}, nil
}

func main() {
	EnvOverride()
	flag.Parse()

	var arg, out string
	switch args := flag.Args(); {
	case *latest != "" && len(args) <= 1:
		if len(args) == 1 {
			out = args[0]
		}
	case *latest == "" && (len(args) == 1 || len(args) == 2):
		arg = args[0]
		if len(args) == 2 {
			out = args[1]
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	p, err := ParseCode(arg, *latest)
	if err != nil {
		log.Fatal(err)
	}

	msg := packet.NewMessage(p, packet.Subaru)
	log.WithFields(log.Fields{
		"code":         msg.Code(),
		"command":      msg.CommandName(),
		"rolling_code": msg.RollingCode(),
	}).Info("encoding")
	log.WithField("chips", transmit.ChipString(p)).Info("bit code")

	s, err := openSink(cfg, out)
	if err != nil {
		log.Fatal(err)
	}

	mod := transmit.NewOOK(cfg.TX.SampleRate, cfg.TX.CarrierFreq)
	enc := transmit.Encoder{
		Frame:     cfg.TX.Frame,
		Symbol:    cfg.TX.Symbol,
		High:      cfg.TX.Amplitude,
		Modulator: mod,
	}

	start := time.Now()
	if err := enc.Encode(p, s); err != nil {
		s.Close()
		log.Fatal(err)
	}
	if err := s.Close(); err != nil {
		log.Fatal(err)
	}

	samples := int64(cfg.TX.Frame.Len() * mod.Samples(cfg.TX.Symbol))
	log.WithFields(log.Fields{
		"samples":  humanize.Comma(samples),
		"duration": time.Duration(float64(samples) / cfg.TX.SampleRate * float64(time.Second)).Round(time.Millisecond),
		"elapsed":  time.Since(start).Round(time.Millisecond),
		"sink":     cfg.TX.Sink,
	}).Info("frame written")
}
