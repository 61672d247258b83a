package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fxnlabs/compute-bridge/internal/bridge"
	"github.com/fxnlabs/compute-bridge/internal/device"
	"github.com/fxnlabs/compute-bridge/kernels"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Compile a vector-add kernel and dispatch it as a smoke test",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kernel",
				Usage: "Path to a kernel source file (defaults to the bundled vec_add)",
			},
			&cli.StringFlag{
				Name:  "entry",
				Value: "vec_add",
				Usage: "Kernel entry point; must take buffers [a, b, result]",
			},
			&cli.IntFlag{
				Name:  "width",
				Value: 1024,
				Usage: "Number of float32 elements per buffer",
			},
		},
		Action: func(c *cli.Context) error {
			log := rootLogger.Named("run")
			width := c.Int("width")
			if width <= 0 {
				return fmt.Errorf("width must be positive, got %d", width)
			}

			dev, err := device.New(cfg.Device.Backend, slog.Default())
			if err != nil {
				return err
			}
			br := bridge.New(dev, rootLogger)
			defer br.Close()

			entry := c.String("entry")
			source := kernels.ForBackend(dev.Info().Backend, entry)
			if path := c.String("kernel"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				source = string(data)
			}
			if source == "" {
				return fmt.Errorf("no bundled kernel for entry point %q; pass --kernel", entry)
			}

			ctx := context.Background()
			fn, err := br.Compile(ctx, source, entry)
			if err != nil {
				return err
			}

			handles := make([]bridge.Handle, 3)
			for i := range handles {
				if handles[i], err = br.Allocate(width * 4); err != nil {
					return err
				}
			}

			a, err := br.View(handles[0])
			if err != nil {
				return err
			}
			b, err := br.View(handles[1])
			if err != nil {
				return err
			}
			fillFloats(a, func(i int) float32 { return float32(i) })
			fillFloats(b, func(i int) float32 { return float32(2 * i) })

			start := time.Now()
			grid := device.Grid{X: width, Y: 1, Z: 1}
			if err := br.Dispatch(ctx, fn, grid, handles); err != nil {
				return err
			}
			log.Info("dispatch completed",
				zap.Int("width", width),
				zap.Duration("duration", time.Since(start)))

			out, err := br.View(handles[2])
			if err != nil {
				return err
			}
			preview := width
			if preview > 8 {
				preview = 8
			}
			for i := 0; i < preview; i++ {
				fmt.Printf("result[%d] = %g\n", i, readFloat(out, i))
			}
			return nil
		},
	}
}

func fillFloats(view []byte, f func(i int) float32) {
	for i := 0; i+4 <= len(view); i += 4 {
		v := f(i / 4)
		putFloat(view, i/4, v)
	}
}
