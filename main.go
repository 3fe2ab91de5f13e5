/*
Host application that drives a GPU context: it creates and releases
resources from several goroutines every frame and tears the context down
on exit or on SIGINT/SIGTERM.
*/
package main

import (
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vkctx/engine"
	"github.com/spaghettifunk/vkctx/engine/core"
	"github.com/spaghettifunk/vkctx/testbed"
)

const defaultConfigPath = "vkctx.toml"

func main() {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			core.LogFatal("%s", err)
		}
		core.LogInfo("No config at %s, using defaults", configPath)
		cfg = core.DefaultConfig()
		configPath = ""
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogFatal("%s", err)
	}

	tb := testbed.NewTestGame(&cfg.App)

	engine, err := engine.New(tb.Game, cfg, configPath)
	if err != nil {
		panic(err)
	}

	if err := engine.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		engine.Shutdown()
	}()

	// run engine
	if err := engine.Run(); err != nil {
		panic(err)
	}
}
