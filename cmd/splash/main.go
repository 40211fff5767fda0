// Command splash runs the World process: it loads the configuration,
// spawns one Scene per GPU and supervises the installation.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		silent     bool
		debug      bool
	)
	flag.StringVarP(&configPath, "open", "o", "", "configuration file to load")
	flag.BoolVarP(&silent, "silent", "s", false, "suppress logs")
	flag.BoolVarP(&debug, "debug", "d", false, "debug verbosity")
	flag.Parse()

	log := newLogger(silent, debug)

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "splash: no configuration file, use -o <path>")
		return 1
	}

	if err := runWorld(configPath, log); err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	return 0
}

func newLogger(silent, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if silent {
		level = zerolog.Disabled
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
