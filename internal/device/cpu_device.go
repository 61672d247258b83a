package device

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"sync"
)

// CPUDevice implements Device by executing a table of built-in kernels on the
// CPU. It is always available and serves as the reference backend: kernel
// source is validated for the requested entry point, then execution is
// delegated to the Go implementation registered under that entry point.
type CPUDevice struct {
	logger  *slog.Logger
	mu      sync.Mutex
	kernels map[string]KernelFunc
	closed  bool
}

// KernelFunc is the CPU implementation of one kernel entry point. args holds
// the host views of the bound buffers in argument order; grid is the full
// thread grid requested by the dispatch.
type KernelFunc func(args [][]byte, grid Grid) error

// NewCPUDevice creates a CPU device preloaded with the built-in kernels.
func NewCPUDevice(logger *slog.Logger) *CPUDevice {
	if logger == nil {
		logger = slog.Default()
	}
	d := &CPUDevice{
		logger:  logger,
		kernels: make(map[string]KernelFunc, len(builtinKernels)),
	}
	for name, fn := range builtinKernels {
		d.kernels[name] = fn
	}
	logger.Debug("CPU device created", "kernels", len(d.kernels))
	return d
}

// RegisterKernel adds or replaces the CPU implementation for an entry point.
func (d *CPUDevice) RegisterKernel(entryPoint string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[entryPoint] = fn
}

// kernelDecl matches an MSL ("kernel void name(") or WGSL ("fn name(")
// declaration of a given routine name.
func kernelDecl(entryPoint string) *regexp.Regexp {
	return regexp.MustCompile(`(kernel\s+void|fn)\s+` + regexp.QuoteMeta(entryPoint) + `\s*\(`)
}

// Compile validates the source and entry point and resolves the registered
// CPU implementation. The returned pipeline serializes its own dispatches.
func (d *CPUDevice) Compile(_ context.Context, source, entryPoint string) (Pipeline, error) {
	if source == "" {
		return nil, fmt.Errorf("missing kernel source")
	}
	if entryPoint == "" {
		return nil, fmt.Errorf("missing entry point")
	}
	if !kernelDecl(entryPoint).MatchString(source) {
		return nil, fmt.Errorf("entry point %q not declared in kernel source", entryPoint)
	}

	d.mu.Lock()
	fn, ok := d.kernels[entryPoint]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no CPU implementation registered for entry point %q", entryPoint)
	}

	d.logger.Debug("compiled CPU kernel", "entry_point", entryPoint)
	return &cpuPipeline{entryPoint: entryPoint, fn: fn}, nil
}

// NewBuffer allocates host memory shared directly with the CPU "device".
func (d *CPUDevice) NewBuffer(sizeBytes int) (Buffer, error) {
	if sizeBytes <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", sizeBytes)
	}
	return &cpuBuffer{data: make([]byte, sizeBytes)}, nil
}

// Info returns device information for the CPU backend.
func (d *CPUDevice) Info() Info {
	return Info{
		Name:               fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		Backend:            "cpu",
		TotalMemory:        8 << 30,
		MaxThreadsPerGroup: 1024,
		MaxGroupDim:        Grid{X: 1024, Y: 1024, Z: 64},
		UnifiedMemory:      true,
	}
}

// Close marks the device closed. Outstanding buffers stay usable; there is no
// native state to tear down.
func (d *CPUDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type cpuPipeline struct {
	entryPoint string
	fn         KernelFunc

	// queue serializes dispatches, standing in for the dedicated command
	// queue a native backend would create per pipeline.
	queue sync.Mutex
}

func (p *cpuPipeline) EntryPoint() string      { return p.entryPoint }
func (p *cpuPipeline) MaxThreadsPerGroup() int { return 1024 }
func (p *cpuPipeline) ExecutionWidth() int     { return 32 }

func (p *cpuPipeline) Dispatch(ctx context.Context, grid, group Grid, args []Buffer) error {
	if !grid.Valid() {
		return fmt.Errorf("invalid grid %dx%dx%d", grid.X, grid.Y, grid.Z)
	}
	if !group.Valid() {
		return fmt.Errorf("invalid threadgroup %dx%dx%d", group.X, group.Y, group.Z)
	}

	p.queue.Lock()
	defer p.queue.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	views := make([][]byte, len(args))
	for i, arg := range args {
		views[i] = arg.Bytes()
	}
	if err := p.fn(views, grid); err != nil {
		return fmt.Errorf("kernel %q failed: %w", p.entryPoint, err)
	}
	return nil
}

func (p *cpuPipeline) Release() {}

type cpuBuffer struct {
	data []byte
}

func (b *cpuBuffer) Size() int     { return len(b.data) }
func (b *cpuBuffer) Bytes() []byte { return b.data }
func (b *cpuBuffer) Release()      { b.data = nil }
