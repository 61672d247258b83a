// Package compute is the typed, in-process facade over the handle-based
// bridge. It is the API embedders use when they link the bridge as a Go
// library rather than through the C surface: buffers come back as typed
// slices sharing the device memory, and kernels are values with a Run method.
package compute

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/fxnlabs/compute-bridge/internal/bridge"
	"github.com/fxnlabs/compute-bridge/internal/device"
	"go.uber.org/zap"
)

// Scalar covers the element types a device buffer can be viewed as.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Grid re-exports the dispatch grid type for embedders.
type Grid = device.Grid

// Session owns one bridge over one device.
type Session struct {
	bridge *bridge.Bridge
}

// NewSession creates a session over the named device backend ("auto", "cpu",
// "metal", "webgpu").
func NewSession(backend string, logger *zap.Logger) (*Session, error) {
	dev, err := device.New(backend, nil)
	if err != nil {
		return nil, err
	}
	return &Session{bridge: bridge.New(dev, logger)}, nil
}

// NewSessionWithDevice wraps an already-constructed device, which the session
// owns from here on.
func NewSessionWithDevice(dev device.Device, logger *zap.Logger) *Session {
	return &Session{bridge: bridge.New(dev, logger)}
}

// Bridge exposes the underlying handle-based bridge.
func (s *Session) Bridge() *bridge.Bridge { return s.bridge }

// Close releases every live kernel and buffer and the device itself.
func (s *Session) Close() error { return s.bridge.Close() }

// Kernel is a compiled function bound to its session.
type Kernel struct {
	session *Session
	handle  bridge.Handle
	entry   string
}

// Compile builds a kernel from source for the given entry point.
func (s *Session) Compile(ctx context.Context, source, entryPoint string) (*Kernel, error) {
	h, err := s.bridge.Compile(ctx, source, entryPoint)
	if err != nil {
		return nil, err
	}
	return &Kernel{session: s, handle: h, entry: entryPoint}, nil
}

// Handle returns the kernel's registry handle.
func (k *Kernel) Handle() bridge.Handle { return k.handle }

// String returns the kernel's entry point name.
func (k *Kernel) String() string { return k.entry }

// Run dispatches the kernel over grid with the buffers bound as arguments in
// the order given. It blocks until the device signals completion.
func (k *Kernel) Run(ctx context.Context, grid Grid, buffers ...bridge.Handle) error {
	return k.session.bridge.Dispatch(ctx, k.handle, grid, buffers)
}

// Release returns the kernel's pipeline to the device and invalidates it.
func (k *Kernel) Release() error {
	return k.session.bridge.ReleaseFunction(k.handle)
}

// Alloc reserves a device-visible buffer holding numElems elements of T and
// returns its handle together with a typed slice over the device memory.
// Only the contents of the slice should be modified; its length and backing
// memory belong to the buffer until Free.
func Alloc[T Scalar](s *Session, numElems int) (bridge.Handle, []T, error) {
	if numElems <= 0 {
		return bridge.InvalidHandle, nil, fmt.Errorf("invalid number of elements %d", numElems)
	}

	var t T
	h, err := s.bridge.Allocate(numElems * int(unsafe.Sizeof(t)))
	if err != nil {
		return bridge.InvalidHandle, nil, err
	}

	view, err := s.bridge.View(h)
	if err != nil {
		return bridge.InvalidHandle, nil, err
	}
	return h, viewAs[T](view, numElems), nil
}

// ViewAs returns a typed slice over an existing buffer's device memory.
func ViewAs[T Scalar](s *Session, h bridge.Handle) ([]T, error) {
	view, err := s.bridge.View(h)
	if err != nil {
		return nil, err
	}
	var t T
	return viewAs[T](view, len(view)/int(unsafe.Sizeof(t))), nil
}

// Free releases a buffer and invalidates every typed view of it.
func (s *Session) Free(h bridge.Handle) error {
	return s.bridge.ReleaseBuffer(h)
}

func viewAs[T Scalar](view []byte, numElems int) []T {
	if numElems == 0 || len(view) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&view[0])), numElems)
}
