// Package main exports the bridge as a handle-based C ABI, built with
// -buildmode=c-shared. Every fallible call takes an error out-parameter that
// is populated (with a string the caller must free) only on failure; the
// primary return value is a sentinel (-1 handle, 0 pointer) in that case.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/fxnlabs/compute-bridge/internal/bridge"
	"github.com/fxnlabs/compute-bridge/internal/config"
	"github.com/fxnlabs/compute-bridge/internal/device"
	"github.com/fxnlabs/compute-bridge/internal/logger"
	"go.uber.org/zap"
)

const configPath = "config.yaml"

// The C surface keeps one process-wide bridge, initialized lazily so callers
// that skip BridgeInit still work. Initialization runs at most once; its
// outcome is sticky.
var (
	initOnce  sync.Once
	shared    *bridge.Bridge
	sharedErr error
)

func sharedBridge() (*bridge.Bridge, error) {
	initOnce.Do(func() {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			sharedErr = err
			return
		}
		log, err := logger.New(cfg.Logger.Verbosity)
		if err != nil {
			sharedErr = err
			return
		}
		dev, err := device.New(cfg.Device.Backend, slog.Default())
		if err != nil {
			sharedErr = err
			return
		}
		shared = bridge.New(dev, log)
		log.Info("bridge initialized",
			zap.String("backend", dev.Info().Backend),
			zap.String("device", dev.Info().Name))
	})
	return shared, sharedErr
}

// setErr copies err into the caller's error slot. The caller owns the string
// and frees it. errOut is left untouched on success paths.
func setErr(errOut **C.char, err error) {
	if errOut != nil && err != nil {
		*errOut = C.CString(err.Error())
	}
}

// BridgeInit initializes the device context. It is idempotent and safe to
// omit; every other call initializes on demand. Returns 0 on success.
//
//export BridgeInit
func BridgeInit(errOut **C.char) C.int {
	if _, err := sharedBridge(); err != nil {
		setErr(errOut, err)
		return -1
	}
	return 0
}

// BridgeCompile compiles kernel source text for the exported routine named
// entryPoint and returns the new function handle, or -1 on failure.
//
//export BridgeCompile
func BridgeCompile(source, entryPoint *C.char, errOut **C.char) C.int {
	b, err := sharedBridge()
	if err != nil {
		setErr(errOut, err)
		return -1
	}

	h, err := b.Compile(context.Background(), C.GoString(source), C.GoString(entryPoint))
	if err != nil {
		setErr(errOut, err)
		return -1
	}
	return C.int(h)
}

// BridgeAllocate reserves sizeBytes of device-visible memory and returns the
// new buffer handle, or -1 on failure.
//
//export BridgeAllocate
func BridgeAllocate(sizeBytes C.int, errOut **C.char) C.int {
	b, err := sharedBridge()
	if err != nil {
		setErr(errOut, err)
		return -1
	}

	h, err := b.Allocate(int(sizeBytes))
	if err != nil {
		setErr(errOut, err)
		return -1
	}
	return C.int(h)
}

// BridgeView returns the host-addressable pointer backing a buffer, or 0 on
// failure. The pointer stays valid until the handle is released.
//
//export BridgeView
func BridgeView(handle C.int, errOut **C.char) C.uintptr_t {
	b, err := sharedBridge()
	if err != nil {
		setErr(errOut, err)
		return 0
	}

	view, err := b.View(bridge.Handle(handle))
	if err != nil {
		setErr(errOut, err)
		return 0
	}
	return C.uintptr_t(uintptr(unsafe.Pointer(&view[0])))
}

// BridgeRun dispatches width x height x depth threads of the compiled
// function, with the buffers bound as kernel arguments in array order. It
// blocks until the device signals completion. Returns 0 on success.
//
//export BridgeRun
func BridgeRun(fn, width, height, depth C.int, buffers *C.int, count C.int, errOut **C.char) C.int {
	b, err := sharedBridge()
	if err != nil {
		setErr(errOut, err)
		return -1
	}

	var handles []bridge.Handle
	if buffers != nil && count > 0 {
		for _, id := range unsafe.Slice(buffers, int(count)) {
			handles = append(handles, bridge.Handle(id))
		}
	}

	grid := device.Grid{X: int(width), Y: int(height), Z: int(depth)}
	if err := b.Dispatch(context.Background(), bridge.Handle(fn), grid, handles); err != nil {
		setErr(errOut, err)
		return -1
	}
	return 0
}

// BridgeReleaseFunction releases a compiled function and invalidates its
// handle. Returns 0 on success.
//
//export BridgeReleaseFunction
func BridgeReleaseFunction(handle C.int, errOut **C.char) C.int {
	b, err := sharedBridge()
	if err != nil {
		setErr(errOut, err)
		return -1
	}
	if err := b.ReleaseFunction(bridge.Handle(handle)); err != nil {
		setErr(errOut, err)
		return -1
	}
	return 0
}

// BridgeReleaseBuffer releases a buffer, invalidates its handle and any
// pointers previously returned by BridgeView. Returns 0 on success.
//
//export BridgeReleaseBuffer
func BridgeReleaseBuffer(handle C.int, errOut **C.char) C.int {
	b, err := sharedBridge()
	if err != nil {
		setErr(errOut, err)
		return -1
	}
	if err := b.ReleaseBuffer(bridge.Handle(handle)); err != nil {
		setErr(errOut, err)
		return -1
	}
	return 0
}

func main() {}
