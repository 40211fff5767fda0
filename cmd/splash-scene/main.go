// Command splash-scene runs one Scene child process. It receives its
// scene name as a positional argument, binds its sockets, connects back
// to the World and drives the render loop on the main thread.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/splashmapping/splash/engine/scene"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		silent bool
		debug  bool
		master bool
	)
	flag.BoolVarP(&silent, "silent", "s", false, "suppress logs")
	flag.BoolVarP(&debug, "debug", "d", false, "debug verbosity")
	flag.BoolVar(&master, "master", false, "run as the master scene")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "splash-scene: missing scene name")
		return 1
	}
	name := flag.Arg(0)

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if silent {
		level = zerolog.Disabled
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).
		With().Timestamp().Logger()

	s, err := scene.New(name, master, log)
	if err != nil {
		log.Error().Err(err).Msg("scene startup failed")
		return 1
	}
	if err := s.Transport().ListenIPC("/tmp/splash-" + name); err != nil {
		log.Error().Err(err).Msg("cannot bind scene sockets")
		return 1
	}
	if err := s.ConnectTo("world", "ipc:///tmp/splash-world"); err != nil {
		log.Warn().Err(err).Msg("world not reachable yet")
	}
	s.SetupInputs()

	if err := s.Run(); err != nil {
		log.Error().Err(err).Msg("scene failed")
		return 1
	}
	return 0
}
