package main

import (
	"fmt"
	"os"

	"github.com/fxnlabs/compute-bridge/internal/config"
	"github.com/fxnlabs/compute-bridge/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	cfg        *config.Config
	rootLogger *zap.Logger
)

func main() {
	var configPath string

	app := &cli.App{
		Name:  "bridge",
		Usage: "Drive GPU compute kernels through the handle-based bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       "config.yaml",
				Usage:       "Path to the bridge config file",
				EnvVars:     []string{"BRIDGE_CONFIG"},
				Destination: &configPath,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			rootLogger = zapLogger.Named("cli")
			return nil
		},
		Commands: []*cli.Command{
			infoCommand(),
			runCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if rootLogger != nil {
			rootLogger.Fatal("failed to run app", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
