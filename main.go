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

	log "github.com/sirupsen/logrus"

	"github.com/fobrob/fobrob/config"
)

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

// LoadConfig reads the configuration file if one was given and applies
// flags over it.
func LoadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	if err := ApplyFlags(&cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func main() {
	rcvr.sdr.RegisterFlags()
	RegisterFlags()
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}
	cfg.Log()

	rcvr.NewReceiver(cfg)
	defer rcvr.Close()

	if err := rcvr.Run(); err != nil {
		log.Error(err)
		rcvr.Close()
		os.Exit(1)
	}
}
