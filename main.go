/*
Monkey runs one of the example render modes on the Vulkan backend. The mode
and every renderer setting come from a TOML configuration file.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/monkey/engine"
	"github.com/spaghettifunk/monkey/engine/app"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path of the TOML configuration file")
	modeName := flag.String("mode", "", "render mode to run, overrides the configuration")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load configuration: %v", err)
	}
	if *modeName != "" {
		cfg.Renderer.Mode = *modeName
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogFatal("%v", err)
	}

	mode, err := testbed.New(cfg.Renderer.Mode)
	if err != nil {
		core.LogFatal("%v", err)
	}

	e := engine.New(cfg, mode)
	if err := e.Initialize(); err != nil {
		core.LogError("failed to initialize the engine: %v", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the device, so the signal only asks it to stop
	go func() {
		<-sigCh
		core.LogInfo("signal received, shutting down")
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %v", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %v", runErr)
	}
}
