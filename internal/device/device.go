package device

import "context"

// Grid describes a 3-dimensional arrangement of compute threads. Every
// dimension that is not needed should have a size of 1. A Grid is also used
// for the shape of a single threadgroup when partitioning work.
type Grid struct {
	X int
	Y int
	Z int
}

// Threads returns the total number of threads the grid covers.
func (g Grid) Threads() int {
	return g.X * g.Y * g.Z
}

// Valid reports whether every dimension is at least one unit long.
func (g Grid) Valid() bool {
	return g.X >= 1 && g.Y >= 1 && g.Z >= 1
}

// Info contains information about the compute device backing a backend.
type Info struct {
	Name               string `json:"name"`
	Backend            string `json:"backend"`
	TotalMemory        int64  `json:"totalMemory"` // in bytes
	MaxThreadsPerGroup int    `json:"maxThreadsPerGroup"`
	MaxGroupDim        Grid   `json:"maxGroupDim"` // per-dimension threadgroup limits
	UnifiedMemory      bool   `json:"unifiedMemory"`
}

// Device is the capability provider for one compute device. Implementations
// wrap a native runtime (Metal, WebGPU) or execute on the CPU as a reference.
//
// Implementation notes:
// - Compile and NewBuffer may be called from multiple goroutines.
// - Pipelines returned by Compile own a dedicated submission channel; two
//   dispatches on the same pipeline never interleave.
// - Buffers must expose host-addressable memory for their whole lifetime.
type Device interface {
	// Compile builds an executable pipeline from kernel source text. The
	// entry point must name a kernel routine declared in the source.
	Compile(ctx context.Context, source, entryPoint string) (Pipeline, error)

	// NewBuffer allocates sizeBytes of device-visible memory.
	NewBuffer(sizeBytes int) (Buffer, error)

	// Info returns information about the underlying device.
	Info() Info

	// Close releases the device and everything it still owns.
	Close() error
}

// Pipeline is a compiled kernel ready for submission.
type Pipeline interface {
	// EntryPoint returns the kernel routine name the pipeline was built for.
	EntryPoint() string

	// MaxThreadsPerGroup returns the device-reported cap on threads in a
	// single threadgroup for this pipeline.
	MaxThreadsPerGroup() int

	// ExecutionWidth returns the device-reported optimal width of one
	// threadgroup row. Callers size threadgroups to a multiple of this.
	ExecutionWidth() int

	// Dispatch submits grid.Threads() invocations partitioned into
	// threadgroups of the given shape, binds args positionally as kernel
	// arguments, and blocks until the device signals completion.
	Dispatch(ctx context.Context, grid, group Grid, args []Buffer) error

	// Release returns the pipeline and its submission queue to the device.
	Release()
}

// Buffer is a device-visible memory allocation readable and writable by both
// host and device.
type Buffer interface {
	// Size returns the byte length of the allocation.
	Size() int

	// Bytes returns the host-addressable view of the allocation. Writes made
	// through the view before a dispatch become kernel inputs; kernel writes
	// are visible through it once the dispatch returns.
	Bytes() []byte

	// Release returns the memory to the device.
	Release()
}
