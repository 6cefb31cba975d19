// Package config holds the receiver and transmitter configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/fobrob/fobrob/demod"
	"github.com/fobrob/fobrob/packet"
	"github.com/fobrob/fobrob/radio"
	"github.com/fobrob/fobrob/sink"
	"github.com/fobrob/fobrob/transmit"
)

// Sources lists the accepted values of Config.Source.
var Sources = []string{"rtltcp", "rtlsdr", "hackrf", "file"}

type Config struct {
	Source string `yaml:"source"`
	// Device is the rtlsdr device index.
	Device int `yaml:"device"`
	// File is the sample file read by the file source.
	File   string       `yaml:"file"`
	Format radio.Format `yaml:"format"`

	Tuning radio.Tuning `yaml:"tuning"`
	HackRF HackRF       `yaml:"hackrf"`

	Decimation int `yaml:"decimation"`
	// FilterTaps is the low-pass length, zero for the default.
	FilterTaps int `yaml:"filter_taps"`
	// BlockSize is the number of complex samples read at a time.
	BlockSize int `yaml:"block_size"`

	Demod  demod.Config `yaml:"demod"`
	Layout string       `yaml:"layout"`

	Output  Output          `yaml:"output"`
	MQTT    sink.MQTTConfig `yaml:"mqtt"`
	Metrics string          `yaml:"metrics"`

	TX TX `yaml:"tx"`
}

type HackRF struct {
	LNAGain   int  `yaml:"lna_gain"`
	VGAGain   int  `yaml:"vga_gain"`
	TXVGAGain int  `yaml:"tx_vga_gain"`
	Amp       bool `yaml:"amp"`
}

type Output struct {
	Format string `yaml:"format"`
	// Dir holds the latest and received code files. Files are not written
	// if it is empty.
	Dir      string   `yaml:"dir"`
	SQLite   string   `yaml:"sqlite"`
	Unique   bool     `yaml:"unique"`
	Commands []string `yaml:"commands"`
	// QueueSize bounds the packets waiting for the sinks.
	QueueSize int `yaml:"queue_size"`
}

type TX struct {
	Sink        string               `yaml:"sink"`
	SampleRate  float64              `yaml:"sample_rate"`
	CarrierFreq float64              `yaml:"carrier_freq"`
	Amplitude   float64              `yaml:"amplitude"`
	Symbol      time.Duration        `yaml:"symbol"`
	Frame       transmit.FrameConfig `yaml:"frame"`
}

func Default() Config {
	return Config{
		Source: "rtltcp",
		File:   "-",
		Format: radio.CU8,
		Tuning: radio.Tuning{
			CenterFreq: 433920000,
			SampleRate: 4 * 972500,
			Gain:       42,
		},
		HackRF: HackRF{LNAGain: 32, VGAGain: 20, TXVGAGain: 30},

		Decimation: 20,
		BlockSize:  1 << 16,

		Demod:  demod.DefaultConfig(),
		Layout: packet.Subaru.Name,

		Output: Output{
			Format:    "plain",
			Dir:       ".",
			QueueSize: 64,
		},
		MQTT: sink.DefaultMQTTConfig(),

		TX: TX{
			Sink:       "csv",
			SampleRate: 4e6,
			// Offset from the tuned frequency.
			CarrierFreq: 100e3,
			Amplitude:   0.9 * 2047,
			Symbol:      1013210 * time.Nanosecond,
			Frame:       transmit.DefaultFrameConfig(),
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value; unknown keys are an error.
func Load(name string) (Config, error) {
	cfg := Default()

	buf, err := os.ReadFile(name)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}

	if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", name)
	}

	return cfg, nil
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Validate reports the first impossible setting.
func (cfg Config) Validate() error {
	if !oneOf(cfg.Source, Sources) {
		return fmt.Errorf("invalid source: %q", cfg.Source)
	}
	if _, err := radio.ParseFormat(cfg.Format.String()); err != nil {
		return err
	}
	if cfg.Tuning.SampleRate == 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if cfg.Decimation < 1 {
		return fmt.Errorf("decimation must be positive: %d", cfg.Decimation)
	}
	if cfg.FilterTaps < 0 {
		return fmt.Errorf("filter taps must not be negative: %d", cfg.FilterTaps)
	}
	if cfg.BlockSize < 1 {
		return fmt.Errorf("block size must be positive: %d", cfg.BlockSize)
	}
	if err := cfg.Demod.Validate(); err != nil {
		return errors.Wrap(err, "demod")
	}
	if _, err := packet.Lookup(cfg.Layout); err != nil {
		return err
	}
	if !oneOf(cfg.Output.Format, sink.Formats) {
		return fmt.Errorf("invalid output format: %q", cfg.Output.Format)
	}
	if cfg.Output.QueueSize < 1 {
		return fmt.Errorf("queue size must be positive: %d", cfg.Output.QueueSize)
	}
	return nil
}

// ValidateTX reports the first impossible transmitter setting.
func (cfg Config) ValidateTX() error {
	if !oneOf(cfg.TX.Sink, []string{"csv", "hackrf"}) {
		return fmt.Errorf("invalid tx sink: %q", cfg.TX.Sink)
	}
	if cfg.TX.SampleRate <= 0 {
		return fmt.Errorf("tx sample rate must be positive: %f", cfg.TX.SampleRate)
	}
	if cfg.TX.CarrierFreq < 0 || cfg.TX.CarrierFreq >= cfg.TX.SampleRate/2 {
		return fmt.Errorf("carrier must be in [0, %f): %f", cfg.TX.SampleRate/2, cfg.TX.CarrierFreq)
	}
	if cfg.TX.Amplitude <= 0 {
		return fmt.Errorf("amplitude must be positive: %f", cfg.TX.Amplitude)
	}
	if cfg.TX.Symbol <= 0 {
		return fmt.Errorf("symbol duration must be positive: %s", cfg.TX.Symbol)
	}
	return errors.Wrap(cfg.TX.Frame.Validate(), "frame")
}

// Log prints the receiver configuration.
func (cfg Config) Log() {
	log.WithFields(log.Fields{
		"source":     cfg.Source,
		"layout":     cfg.Layout,
		"decimation": cfg.Decimation,
		"block_size": cfg.BlockSize,
	}).WithFields(cfg.Tuning.Fields()).Info("receiver")

	log.WithFields(log.Fields{
		"samples_per_symbol":        cfg.Demod.SamplesPerSymbol,
		"min_preamble_bits":         cfg.Demod.MinPreambleBits,
		"max_preamble_timing_error": cfg.Demod.MaxPreambleTimingError,
		"threshold":                 cfg.Demod.Threshold,
		"gap_symbols":               cfg.Demod.GapSymbols,
		"repeat_gap_symbols":        cfg.Demod.RepeatGapSymbols,
		"policy":                    cfg.Demod.Policy,
	}).Info("demodulator")
}
