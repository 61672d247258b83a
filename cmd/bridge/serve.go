package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Expose bridge metrics over HTTP",
		Action: func(c *cli.Context) error {
			log := rootLogger.Named("serve")

			http.Handle("/metrics", promhttp.Handler())

			addr := cfg.Metrics.ListenAddress
			log.Info("serving metrics", zap.String("address", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Fatal("failed to start server", zap.Error(err))
			}
			return nil
		},
	}
}
