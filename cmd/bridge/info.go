package main

import (
	"fmt"
	"log/slog"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/compute-bridge/internal/device"
	"github.com/urfave/cli/v2"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Print information about the selected compute device",
		Action: func(c *cli.Context) error {
			banner := figure.NewFigure("bridge", "", true)
			banner.Print()
			fmt.Println("")

			dev, err := device.New(cfg.Device.Backend, slog.Default())
			if err != nil {
				return err
			}
			defer dev.Close()

			info := dev.Info()
			fmt.Printf("Device:              %s\n", info.Name)
			fmt.Printf("Backend:             %s\n", info.Backend)
			if info.TotalMemory > 0 {
				fmt.Printf("Total memory:        %.1f GiB\n", float64(info.TotalMemory)/(1<<30))
			}
			fmt.Printf("Max threads/group:   %d\n", info.MaxThreadsPerGroup)
			fmt.Printf("Max group dims:      %d x %d x %d\n",
				info.MaxGroupDim.X, info.MaxGroupDim.Y, info.MaxGroupDim.Z)
			fmt.Printf("Unified memory:      %t\n", info.UnifiedMemory)
			return nil
		},
	}
}
