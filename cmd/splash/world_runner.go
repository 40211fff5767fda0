package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/engine/world"
)

// runWorld builds the World, binds its sockets, applies the configuration
// and blocks until quit.
func runWorld(configPath string, log zerolog.Logger) error {
	cfg, err := world.LoadConfig(configPath)
	if err != nil {
		return err
	}

	w, err := world.New(log)
	if err != nil {
		return err
	}
	if err := w.Transport().ListenIPC("/tmp/splash-world"); err != nil {
		log.Warn().Err(err).Msg("world sockets unavailable, in-process scenes only")
	}

	// Spawned children run the sibling splash-scene binary.
	if self, errPath := os.Executable(); errPath == nil {
		w.SetSceneBinary(filepath.Join(filepath.Dir(self), "splash-scene"))
	}

	if err := w.ApplyConfig(cfg, configPath); err != nil {
		return err
	}
	return w.Run()
}
