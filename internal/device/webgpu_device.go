//go:build webgpu
// +build webgpu

package device

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// webgpuDevice implements Device on top of wgpu-native. WebGPU has no
// persistently mapped storage buffers, so each buffer keeps a host shadow
// copy: the shadow is uploaded before a dispatch and refreshed from a staging
// copy after the dispatch completes, which preserves the blocking visibility
// contract of Buffer.Bytes.
type webgpuDevice struct {
	logger   *slog.Logger
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     Info
}

func newWebGPUDevice(logger *slog.Logger) (Device, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("webgpu: failed to create instance")
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		adapter, err = instance.RequestAdapter(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("webgpu: no adapter available: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("webgpu: no adapter available")
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: request device: %w", err)
	}

	ainfo := adapter.GetInfo()
	d := &webgpuDevice{
		logger:   logger,
		instance: instance,
		adapter:  adapter,
		device:   dev,
		queue:    dev.GetQueue(),
		info: Info{
			Name:    ainfo.Name,
			Backend: "webgpu",
			// WebGPU baseline limits; the spec guarantees at least these.
			MaxThreadsPerGroup: 256,
			MaxGroupDim:        Grid{X: 256, Y: 256, Z: 64},
		},
	}
	logger.Debug("WebGPU device acquired", "adapter", ainfo.Name, "vendor", ainfo.VendorName)
	return d, nil
}

// workgroupSizeRe extracts the @workgroup_size attribute of a WGSL kernel.
var workgroupSizeRe = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?(?:,\s*(\d+)\s*)?\)`)

func parseWorkgroupSize(source string) Grid {
	size := Grid{X: 64, Y: 1, Z: 1}
	m := workgroupSizeRe.FindStringSubmatch(source)
	if m == nil {
		return size
	}
	if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
		size.X = v
	}
	if m[2] != "" {
		if v, err := strconv.Atoi(m[2]); err == nil && v > 0 {
			size.Y = v
		}
	}
	if m[3] != "" {
		if v, err := strconv.Atoi(m[3]); err == nil && v > 0 {
			size.Z = v
		}
	}
	return size
}

func (d *webgpuDevice) Compile(_ context.Context, source, entryPoint string) (Pipeline, error) {
	if source == "" {
		return nil, fmt.Errorf("missing kernel source")
	}
	if entryPoint == "" {
		return nil, fmt.Errorf("missing entry point")
	}

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          entryPoint,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: shader compile: %w", err)
	}
	defer module.Release()

	pipeline, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: entryPoint,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create pipeline for %q: %w", entryPoint, err)
	}

	return &webgpuPipeline{
		dev:        d,
		entryPoint: entryPoint,
		pipeline:   pipeline,
		groupSize:  parseWorkgroupSize(source),
	}, nil
}

func (d *webgpuDevice) NewBuffer(sizeBytes int) (Buffer, error) {
	if sizeBytes <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", sizeBytes)
	}

	// Storage buffer sizes must be 4-byte aligned on the device side; the
	// host view keeps the exact requested length.
	padded := (sizeBytes + 3) &^ 3
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "bridge_buffer",
		Size:  uint64(padded),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create buffer: %w", err)
	}

	return &webgpuBuffer{dev: d, buf: buf, shadow: make([]byte, sizeBytes)}, nil
}

func (d *webgpuDevice) Info() Info { return d.info }

func (d *webgpuDevice) Close() error {
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	return nil
}

type webgpuPipeline struct {
	dev        *webgpuDevice
	entryPoint string
	pipeline   *wgpu.ComputePipeline
	groupSize  Grid

	// queue serializes dispatches on this pipeline; wgpu-native exposes a
	// single device queue, so the dedicated-queue contract is provided by
	// mutual exclusion instead.
	queue sync.Mutex
}

func (p *webgpuPipeline) EntryPoint() string      { return p.entryPoint }
func (p *webgpuPipeline) MaxThreadsPerGroup() int { return p.groupSize.Threads() }
func (p *webgpuPipeline) ExecutionWidth() int     { return p.groupSize.X }

func ceilDiv(a, b int) uint32 {
	if b < 1 {
		b = 1
	}
	return uint32((a + b - 1) / b)
}

// Dispatch covers the requested grid with workgroups of the shader's declared
// @workgroup_size. The group argument is validated but the shader's own size
// is authoritative: WGSL fixes the workgroup shape at compile time, so the
// pass dispatches enough groups to cover the grid and kernels bounds-check
// their global id.
func (p *webgpuPipeline) Dispatch(ctx context.Context, grid, group Grid, args []Buffer) error {
	if !grid.Valid() || !group.Valid() {
		return fmt.Errorf("invalid dispatch dimensions")
	}

	p.queue.Lock()
	defer p.queue.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	d := p.dev
	buffers := make([]*webgpuBuffer, len(args))
	for i, arg := range args {
		wb, ok := arg.(*webgpuBuffer)
		if !ok {
			return fmt.Errorf("argument %d is not a WebGPU buffer", i)
		}
		buffers[i] = wb
		d.queue.WriteBuffer(wb.buf, 0, wb.shadow)
	}

	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, wb := range buffers {
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  wb.buf,
			Size:    wb.buf.GetSize(),
		}
	}
	bindGroup, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.entryPoint,
		Layout:  p.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("webgpu: create bind group: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("webgpu: create command encoder: %w", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(
		ceilDiv(grid.X, p.groupSize.X),
		ceilDiv(grid.Y, p.groupSize.Y),
		ceilDiv(grid.Z, p.groupSize.Z),
	)
	pass.End()

	// Stage every buffer for readback so kernel writes become visible
	// through the host views once this call returns.
	stagings := make([]*wgpu.Buffer, len(buffers))
	for i, wb := range buffers {
		staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "bridge_staging",
			Size:  wb.buf.GetSize(),
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("webgpu: create staging buffer: %w", err)
		}
		defer staging.Destroy()
		stagings[i] = staging
		encoder.CopyBufferToBuffer(wb.buf, 0, staging, 0, wb.buf.GetSize())
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("webgpu: finish command buffer: %w", err)
	}
	d.queue.Submit(cmd)

	for i, staging := range stagings {
		if err := d.readInto(ctx, staging, buffers[i].shadow); err != nil {
			return fmt.Errorf("webgpu: readback of argument %d: %w", i, err)
		}
	}
	return nil
}

func (p *webgpuPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

// readInto maps a staging buffer and copies its contents into dst.
func (d *webgpuDevice) readInto(ctx context.Context, staging *wgpu.Buffer, dst []byte) error {
	done := make(chan struct{})
	var mapErr error

	size := staging.GetSize()
	err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return err
	}

	timeout := time.After(5 * time.Second)
	for {
		d.device.Poll(false, nil)
		select {
		case <-done:
			if mapErr != nil {
				return mapErr
			}
			data := staging.GetMappedRange(0, uint(size))
			if data == nil {
				return fmt.Errorf("failed to get mapped range")
			}
			copy(dst, data)
			staging.Unmap()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timed out waiting for buffer map")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

type webgpuBuffer struct {
	dev    *webgpuDevice
	buf    *wgpu.Buffer
	shadow []byte
}

func (b *webgpuBuffer) Size() int     { return len(b.shadow) }
func (b *webgpuBuffer) Bytes() []byte { return b.shadow }

func (b *webgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Destroy()
		b.buf = nil
		b.shadow = nil
	}
}
