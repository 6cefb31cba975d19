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

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/fobrob/fobrob/config"
	"github.com/fobrob/fobrob/demod"
	"github.com/fobrob/fobrob/packet"
	"github.com/fobrob/fobrob/radio"
)

var defaults = config.Default()

var configFile = flag.String("config", "", "yaml configuration file, flags override its values")

var source = flag.String("source", defaults.Source, "sample source: "+strings.Join(config.Sources, ", "))
var device = flag.Int("device", defaults.Device, "rtlsdr device index")
var sampleFilename = flag.String("samplefile", defaults.File, "raw sample file read by the file source, - for stdin")
var sampleFormat = flag.String("sampleformat", defaults.Format.String(), "raw sample format of the file source: cu8, cs8 or cs16")

var decimation = flag.Int("decimation", defaults.Decimation, "integer decimation factor of the low-pass filter")
var filterTaps = flag.Int("filtertaps", defaults.FilterTaps, "low-pass filter length, 0 for 4*decimation+1")
var blockSize = flag.Int("blocksize", defaults.BlockSize, "samples read per block")

var symbolLength = flag.Int("symbollength", defaults.Demod.SamplesPerSymbol, "symbol length in decimated samples")
var minPreamble = flag.Int("minpreamble", defaults.Demod.MinPreambleBits, "on-cadence preamble transitions required to lock")
var timingError = flag.Int("timingerror", defaults.Demod.MaxPreambleTimingError, "tolerated preamble edge timing error in decimated samples")
var threshold = flag.Float64("threshold", defaults.Demod.Threshold, "fixed magnitude decision level, 0 to track the signal envelope")
var policy = flag.String("policy", defaults.Demod.Policy.String(), "repeat policy: first, each or match")
var layout = flag.String("layout", defaults.Layout, "packet field layout")

var lnaGain = flag.Int("lnagain", defaults.HackRF.LNAGain, "hackrf lna gain in dB")
var vgaGain = flag.Int("vgagain", defaults.HackRF.VGAGain, "hackrf vga gain in dB")
var amp = flag.Bool("amp", defaults.HackRF.Amp, "enable the hackrf rf amplifier")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")
var single = flag.Bool("single", false, "one shot execution, exit after the first packet")

var format = flag.String("format", defaults.Output.Format, "decoded message output format: plain, csv, json, or xml")
var outDir = flag.String("outdir", defaults.Output.Dir, "directory of latestcode.txt and receivedcodes.txt, empty to disable")
var sqliteFile = flag.String("sqlite", defaults.Output.SQLite, "sqlite database recording every code")
var unique = flag.Bool("unique", defaults.Output.Unique, "suppress the repeat of a code already delivered")
var commands CommandFlag

var mqttBroker = flag.String("mqtt", defaults.MQTT.Broker, "mqtt broker url, ex. tcp://localhost:1883")
var mqttTopic = flag.String("mqtttopic", defaults.MQTT.Topic, "mqtt topic prefix")

var metricsAddr = flag.String("metrics", defaults.Metrics, "listen address of the prometheus endpoint, ex. :9100")

var version = flag.Bool("version", false, "display build date and commit hash")

var fobrobFlags = map[string]bool{
	"config":       true,
	"source":       true,
	"device":       true,
	"samplefile":   true,
	"sampleformat": true,
	"decimation":   true,
	"filtertaps":   true,
	"blocksize":    true,
	"symbollength": true,
	"minpreamble":  true,
	"timingerror":  true,
	"threshold":    true,
	"policy":       true,
	"layout":       true,
	"lnagain":      true,
	"vgagain":      true,
	"amp":          true,
	"duration":     true,
	"single":       true,
	"format":       true,
	"outdir":       true,
	"sqlite":       true,
	"unique":       true,
	"filtercmd":    true,
	"mqtt":         true,
	"mqtttopic":    true,
	"metrics":      true,
	"version":      true,
}

func RegisterFlags() {
	commands = CommandFlag{make(packet.CommandFilter)}
	flag.Var(commands, "filtercmd", "display only messages matching a command in a comma-separated list of command names")

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(fobrobFlags, true)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(fobrobFlags, false)
	}
}

func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "FOBROB_" + strings.ToUpper(f.Name)
		flagValue := os.Getenv(envName)
		if flagValue == "" {
			return
		}

		entry := log.WithFields(log.Fields{"env": envName, "flag": f.Name, "value": flagValue})
		if err := flag.Set(f.Name, flagValue); err != nil {
			entry.WithError(err).Warn("environment variable failed to override flag")
		} else {
			entry.Info("environment variable overrides flag")
		}
	})
}

// ApplyFlags copies every flag set on the command line or through the
// environment into cfg.
func ApplyFlags(cfg *config.Config) (err error) {
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}

		switch f.Name {
		case "source":
			cfg.Source = *source
		case "device":
			cfg.Device = *device
		case "samplefile":
			cfg.File = *sampleFilename
		case "sampleformat":
			cfg.Format, err = radio.ParseFormat(*sampleFormat)
		case "centerfreq":
			cfg.Tuning.CenterFreq = uint32(rcvr.sdr.Flags.CenterFreq)
		case "samplerate":
			cfg.Tuning.SampleRate = uint32(rcvr.sdr.Flags.SampleRate)
		case "tunergain":
			cfg.Tuning.Gain = rcvr.sdr.Flags.TunerGain
		case "decimation":
			cfg.Decimation = *decimation
		case "filtertaps":
			cfg.FilterTaps = *filterTaps
		case "blocksize":
			cfg.BlockSize = *blockSize
		case "symbollength":
			cfg.Demod.SamplesPerSymbol = *symbolLength
		case "minpreamble":
			cfg.Demod.MinPreambleBits = *minPreamble
		case "timingerror":
			cfg.Demod.MaxPreambleTimingError = *timingError
		case "threshold":
			cfg.Demod.Threshold = *threshold
		case "policy":
			cfg.Demod.Policy, err = demod.ParsePolicy(*policy)
		case "layout":
			cfg.Layout = *layout
		case "lnagain":
			cfg.HackRF.LNAGain = *lnaGain
		case "vgagain":
			cfg.HackRF.VGAGain = *vgaGain
		case "amp":
			cfg.HackRF.Amp = *amp
		case "format":
			cfg.Output.Format = strings.ToLower(*format)
		case "outdir":
			cfg.Output.Dir = *outDir
		case "sqlite":
			cfg.Output.SQLite = *sqliteFile
		case "unique":
			cfg.Output.Unique = *unique
		case "filtercmd":
			cfg.Output.Commands = commands.Names()
		case "mqtt":
			cfg.MQTT.Broker = *mqttBroker
		case "mqtttopic":
			cfg.MQTT.Topic = *mqttTopic
		case "metrics":
			cfg.Metrics = *metricsAddr
		}
	})

	return err
}

// CommandFlag collects command names for a packet.CommandFilter.
type CommandFlag struct {
	packet.CommandFilter
}

func (c CommandFlag) String() string {
	return strings.Join(c.Names(), ",")
}

func (c CommandFlag) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("empty command name in %q", value)
		}
		c.CommandFilter[strings.Title(strings.ToLower(name))] = true
	}

	return nil
}

func (c CommandFlag) Names() (names []string) {
	for name := range c.CommandFilter {
		names = append(names, name)
	}
	return names
}
