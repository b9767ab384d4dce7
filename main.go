package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/healthbridge/abdm-broker/lib"
	"github.com/healthbridge/abdm-broker/lib/logger"
)

func main() {
	app := kingpin.New("abdm-broker", "Credential and public key broker for the ABDM gateway.")

	app.Command("configure", "Prints an example .TOML configuration file.")
	app.Command("version", "Prints the broker version.")

	startCmd := app.Command("start", "Starts the broker daemon.")
	path := startCmd.Flag("config", "TOML config file path").
		Short('c').
		Default("/etc/abdm-broker.toml").
		String()
	debug := startCmd.Flag("debug", "Enable verbose logging to stderr").
		Short('d').
		Bool()

	selectedCmd, err := app.Parse(os.Args[1:])
	if err != nil {
		lib.Bail(err)
	}

	switch selectedCmd {
	case "configure":
		fmt.Print(exampleConfig)
	case "version":
		fmt.Printf("abdm-broker %s git:%s\n", Version, Gitref)
	case "start":
		if err := run(*path, *debug); err != nil {
			lib.Bail(err)
		} else {
			log.Info("Successfully shut down")
		}
	}
}

func run(configPath string, debug bool) error {
	conf, err := LoadConfig(configPath)
	if err != nil {
		return trace.Wrap(err)
	}

	if err := logger.Setup(conf.Log); err != nil {
		return trace.Wrap(err)
	}
	if debug {
		log.SetLevel(log.DebugLevel)
		log.Debug("DEBUG logging enabled")
	}

	app, err := NewApp(*conf)
	if err != nil {
		return trace.Wrap(err)
	}

	ctx := context.Background()
	go lib.ServeSignals(ctx, app, 15*time.Second)

	return trace.Wrap(app.Run(ctx))
}
