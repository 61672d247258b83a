package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxnlabs/compute-bridge/internal/device"
	"github.com/fxnlabs/compute-bridge/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a handle does not name a live entry in
	// the relevant registry.
	ErrNotFound = errors.New("handle not found")

	// ErrInvalidArgument is returned when an operation is called with
	// arguments that can be rejected before reaching the device.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Bridge maps opaque integer handles to live GPU objects and drives the
// compile/allocate/dispatch protocol against one device. Every operation is
// synchronous: it returns only after the native device operation completed.
//
// Each registry has its own lock guarding insertion and lookup; dispatch runs
// without the locks once handles are resolved, since registered entries are
// immutable after creation.
type Bridge struct {
	dev       device.Device
	logger    *zap.Logger
	functions *handleTable[*compiledFunction]
	buffers   *handleTable[*deviceBuffer]
}

// compiledFunction pairs a pipeline with the entry point it was built for.
// The pipeline carries its own dedicated submission queue.
type compiledFunction struct {
	pipeline   device.Pipeline
	entryPoint string
}

type deviceBuffer struct {
	buf  device.Buffer
	size int
}

// New creates a bridge over the given device. The device is owned by the
// bridge from here on and released by Close.
func New(dev device.Device, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		dev:       dev,
		logger:    logger.Named("bridge"),
		functions: newHandleTable[*compiledFunction](),
		buffers:   newHandleTable[*deviceBuffer](),
	}
}

// Device returns the capability provider backing this bridge.
func (b *Bridge) Device() device.Device { return b.dev }

// Compile builds an executable pipeline for entryPoint out of kernel source
// text and registers it under a fresh handle. Compiling the same source twice
// yields two distinct handles; there is no deduplication. Compilation is
// synchronous and may be slow, so it should stay off hot paths.
func (b *Bridge) Compile(ctx context.Context, source, entryPoint string) (Handle, error) {
	if source == "" {
		metrics.KernelCompiles.WithLabelValues("error").Inc()
		return InvalidHandle, fmt.Errorf("%w: missing kernel source", ErrInvalidArgument)
	}
	if entryPoint == "" {
		metrics.KernelCompiles.WithLabelValues("error").Inc()
		return InvalidHandle, fmt.Errorf("%w: missing entry point", ErrInvalidArgument)
	}

	pipeline, err := b.dev.Compile(ctx, source, entryPoint)
	if err != nil {
		metrics.KernelCompiles.WithLabelValues("error").Inc()
		return InvalidHandle, fmt.Errorf("compile %q: %w", entryPoint, err)
	}

	h := b.functions.insert(&compiledFunction{pipeline: pipeline, entryPoint: entryPoint})
	metrics.KernelCompiles.WithLabelValues("ok").Inc()
	b.logger.Debug("compiled kernel",
		zap.String("entry_point", entryPoint),
		zap.Int("handle", int(h)))
	return h, nil
}

// Allocate reserves sizeBytes of device-visible memory and registers it under
// a fresh handle.
func (b *Bridge) Allocate(sizeBytes int) (Handle, error) {
	if sizeBytes <= 0 {
		return InvalidHandle, fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidArgument, sizeBytes)
	}

	buf, err := b.dev.NewBuffer(sizeBytes)
	if err != nil {
		return InvalidHandle, fmt.Errorf("allocate %d bytes: %w", sizeBytes, err)
	}

	h := b.buffers.insert(&deviceBuffer{buf: buf, size: sizeBytes})
	metrics.BuffersLive.Inc()
	metrics.BufferBytesLive.Add(float64(sizeBytes))
	b.logger.Debug("allocated buffer",
		zap.Int("size_bytes", sizeBytes),
		zap.Int("handle", int(h)))
	return h, nil
}

// View returns the host-addressable memory backing a buffer, valid as long
// as the handle stays alive. Writes made through the view before a dispatch
// become kernel inputs; kernel writes become visible through it once the
// dispatch returns.
func (b *Bridge) View(h Handle) ([]byte, error) {
	entry, ok := b.buffers.lookup(h)
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", h, ErrNotFound)
	}
	return entry.buf.Bytes(), nil
}

// Dispatch resolves fn and every buffer handle, binds the buffers as kernel
// arguments in slice order (argument index == position, a hard contract),
// partitions grid into threadgroups sized from the pipeline's reported
// execution width, submits the compute pass on the function's dedicated queue
// and blocks until the device signals completion.
func (b *Bridge) Dispatch(ctx context.Context, fn Handle, grid device.Grid, bufferHandles []Handle) error {
	if !grid.Valid() {
		metrics.Dispatches.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: grid dimensions must be at least 1x1x1, got %dx%dx%d",
			ErrInvalidArgument, grid.X, grid.Y, grid.Z)
	}

	entry, ok := b.functions.lookup(fn)
	if !ok {
		metrics.Dispatches.WithLabelValues("error").Inc()
		return fmt.Errorf("function %d: %w", fn, ErrNotFound)
	}

	args := make([]device.Buffer, len(bufferHandles))
	for i, bh := range bufferHandles {
		buf, ok := b.buffers.lookup(bh)
		if !ok {
			metrics.Dispatches.WithLabelValues("error").Inc()
			return fmt.Errorf("buffer %d (argument %d): %w", bh, i, ErrNotFound)
		}
		args[i] = buf.buf
	}

	group := threadgroupFor(entry.pipeline, grid, b.dev.Info().MaxGroupDim)

	start := time.Now()
	err := entry.pipeline.Dispatch(ctx, grid, group, args)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Dispatches.WithLabelValues("error").Inc()
		return fmt.Errorf("dispatch %q: %w", entry.entryPoint, err)
	}

	metrics.Dispatches.WithLabelValues("ok").Inc()
	b.logger.Debug("dispatch completed",
		zap.String("entry_point", entry.entryPoint),
		zap.Int("threads", grid.Threads()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// threadgroupFor chooses a threadgroup shape for grid from the capabilities
// the pipeline reports. The width dimension is filled first up to the
// execution width, then the remaining thread budget is spent on height and
// depth, each clamped to the grid and the device's per-dimension limits.
func threadgroupFor(p device.Pipeline, grid, limit device.Grid) device.Grid {
	width := p.ExecutionWidth()
	if width < 1 {
		width = 1
	}
	budget := p.MaxThreadsPerGroup()
	if budget < width {
		budget = width
	}

	g := device.Grid{
		X: minDim(width, grid.X, limit.X),
	}
	g.Y = minDim(budget/g.X, grid.Y, limit.Y)
	g.Z = minDim(budget/(g.X*g.Y), grid.Z, limit.Z)
	return g
}

func minDim(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	if m < 1 {
		m = 1
	}
	return m
}

// ReleaseFunction returns a compiled pipeline and its queue to the device and
// invalidates the handle. The handle value is never reissued.
func (b *Bridge) ReleaseFunction(h Handle) error {
	entry, ok := b.functions.remove(h)
	if !ok {
		return fmt.Errorf("function %d: %w", h, ErrNotFound)
	}
	entry.pipeline.Release()
	b.logger.Debug("released function", zap.Int("handle", int(h)))
	return nil
}

// ReleaseBuffer returns a buffer's device memory and invalidates the handle.
// Views previously obtained for the handle must not be used afterwards.
func (b *Bridge) ReleaseBuffer(h Handle) error {
	entry, ok := b.buffers.remove(h)
	if !ok {
		return fmt.Errorf("buffer %d: %w", h, ErrNotFound)
	}
	entry.buf.Release()
	metrics.BuffersLive.Dec()
	metrics.BufferBytesLive.Sub(float64(entry.size))
	b.logger.Debug("released buffer", zap.Int("handle", int(h)))
	return nil
}

// FunctionCount returns the number of live compiled functions.
func (b *Bridge) FunctionCount() int { return b.functions.size() }

// BufferCount returns the number of live buffers.
func (b *Bridge) BufferCount() int { return b.buffers.size() }

// Close releases every live registry entry and then the device itself.
func (b *Bridge) Close() error {
	for _, fn := range b.functions.drain() {
		fn.pipeline.Release()
	}
	for _, buf := range b.buffers.drain() {
		buf.buf.Release()
		metrics.BuffersLive.Dec()
		metrics.BufferBytesLive.Sub(float64(buf.size))
	}
	return b.dev.Close()
}
