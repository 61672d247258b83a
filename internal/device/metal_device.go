//go:build metal && darwin
// +build metal,darwin

package device

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Metal -framework Foundation
#include <stdlib.h>
#include "metal_bridge.h"
*/
import "C"

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"
)

// metalDevice implements Device on top of the Metal runtime. Each compiled
// pipeline gets its own MTLCommandQueue; buffers use shared storage so the
// contents pointer doubles as the host view.
type metalDevice struct {
	logger *slog.Logger
	handle unsafe.Pointer
	info   Info
}

// newMetalDevice acquires the system default Metal device.
func newMetalDevice(logger *slog.Logger) (Device, error) {
	var cerr *C.char
	handle := C.mb_device_create(&cerr)
	if handle == nil {
		defer C.free(unsafe.Pointer(cerr))
		return nil, fmt.Errorf("metal: %s", C.GoString(cerr))
	}

	var cinfo C.mb_device_info
	C.mb_device_get_info(handle, &cinfo)

	d := &metalDevice{
		logger: logger,
		handle: handle,
		info: Info{
			Name:               C.GoString(&cinfo.name[0]),
			Backend:            "metal",
			TotalMemory:        int64(cinfo.total_memory),
			MaxThreadsPerGroup: int(cinfo.max_threads_per_group),
			MaxGroupDim: Grid{
				X: int(cinfo.max_group_w),
				Y: int(cinfo.max_group_h),
				Z: int(cinfo.max_group_d),
			},
			UnifiedMemory: cinfo.unified_memory == 1,
		},
	}
	logger.Debug("Metal device acquired", "device", d.info.Name,
		"unified_memory", d.info.UnifiedMemory)
	return d, nil
}

func (d *metalDevice) Compile(_ context.Context, source, entryPoint string) (Pipeline, error) {
	if source == "" {
		return nil, fmt.Errorf("missing kernel source")
	}
	if entryPoint == "" {
		return nil, fmt.Errorf("missing entry point")
	}

	csource := C.CString(source)
	defer C.free(unsafe.Pointer(csource))
	centry := C.CString(entryPoint)
	defer C.free(unsafe.Pointer(centry))

	var cerr *C.char
	handle := C.mb_pipeline_create(d.handle, csource, centry, &cerr)
	if handle == nil {
		defer C.free(unsafe.Pointer(cerr))
		return nil, fmt.Errorf("metal: %s", C.GoString(cerr))
	}

	return &metalPipeline{
		entryPoint: entryPoint,
		handle:     handle,
		maxThreads: int(C.mb_pipeline_max_threads(handle)),
		execWidth:  int(C.mb_pipeline_exec_width(handle)),
	}, nil
}

func (d *metalDevice) NewBuffer(sizeBytes int) (Buffer, error) {
	if sizeBytes <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", sizeBytes)
	}

	var cerr *C.char
	handle := C.mb_buffer_create(d.handle, C.long(sizeBytes), &cerr)
	if handle == nil {
		defer C.free(unsafe.Pointer(cerr))
		return nil, fmt.Errorf("metal: %s", C.GoString(cerr))
	}

	contents := C.mb_buffer_contents(handle)
	return &metalBuffer{
		handle: handle,
		view:   unsafe.Slice((*byte)(contents), sizeBytes),
	}, nil
}

func (d *metalDevice) Info() Info { return d.info }

func (d *metalDevice) Close() error {
	if d.handle != nil {
		C.mb_device_release(d.handle)
		d.handle = nil
	}
	return nil
}

type metalPipeline struct {
	entryPoint string
	handle     unsafe.Pointer
	maxThreads int
	execWidth  int
}

func (p *metalPipeline) EntryPoint() string      { return p.entryPoint }
func (p *metalPipeline) MaxThreadsPerGroup() int { return p.maxThreads }
func (p *metalPipeline) ExecutionWidth() int     { return p.execWidth }

func (p *metalPipeline) Dispatch(ctx context.Context, grid, group Grid, args []Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handles := make([]unsafe.Pointer, 0, len(args))
	for i, arg := range args {
		mb, ok := arg.(*metalBuffer)
		if !ok {
			return fmt.Errorf("argument %d is not a Metal buffer", i)
		}
		handles = append(handles, mb.handle)
	}

	var bufPtr *unsafe.Pointer
	if len(handles) > 0 {
		bufPtr = &handles[0]
	}

	var cerr *C.char
	rc := C.mb_dispatch(p.handle,
		C.long(grid.X), C.long(grid.Y), C.long(grid.Z),
		C.long(group.X), C.long(group.Y), C.long(group.Z),
		bufPtr, C.int(len(handles)), &cerr)
	if rc != 0 {
		defer C.free(unsafe.Pointer(cerr))
		return fmt.Errorf("metal: %s", C.GoString(cerr))
	}
	return nil
}

func (p *metalPipeline) Release() {
	if p.handle != nil {
		C.mb_pipeline_release(p.handle)
		p.handle = nil
	}
}

type metalBuffer struct {
	handle unsafe.Pointer
	view   []byte
}

func (b *metalBuffer) Size() int     { return len(b.view) }
func (b *metalBuffer) Bytes() []byte { return b.view }

func (b *metalBuffer) Release() {
	if b.handle != nil {
		C.mb_buffer_release(b.handle)
		b.handle = nil
		b.view = nil
	}
}
