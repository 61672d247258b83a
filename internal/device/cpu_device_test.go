package device

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceCommon = `
#include <metal_stdlib>

using namespace metal;

`

const sourceTransfer = `
kernel void transfer(device const float *input, device float *result, uint index [[thread_position_in_grid]]) {
    result[index] = input[index];
}
`

const sourceVecAdd = `
kernel void vec_add(device const float *a, device const float *b, device float *result, uint index [[thread_position_in_grid]]) {
    result[index] = a[index] + b[index];
}
`

func floatsOf(t *testing.T, buf Buffer) []float32 {
	t.Helper()
	view := float32View(buf.Bytes())
	require.NotNil(t, view)
	return view
}

func TestCPUDevice_Compile(t *testing.T) {
	dev := NewCPUDevice(slog.Default())

	type scenario struct {
		source  string
		entry   string
		wantErr string
	}

	scenarios := []scenario{
		{
			// No source or entry point
			wantErr: "missing kernel source",
		},
		{
			source:  sourceCommon + sourceTransfer,
			wantErr: "missing entry point",
		},
		{
			source:  sourceCommon + sourceTransfer,
			entry:   "invalid",
			wantErr: `entry point "invalid" not declared in kernel source`,
		},
		{
			// Declared in source but no CPU implementation registered
			source:  sourceCommon + "kernel void mystery(device float *a, uint i [[thread_position_in_grid]]) {}",
			entry:   "mystery",
			wantErr: `no CPU implementation registered for entry point "mystery"`,
		},
		{
			source: sourceCommon + sourceTransfer,
			entry:  "transfer",
		},
		{
			// WGSL declarations are accepted as well
			source: "@compute @workgroup_size(64)\nfn vec_add(@builtin(global_invocation_id) gid: vec3<u32>) {}",
			entry:  "vec_add",
		},
	}

	for i, sc := range scenarios {
		t.Run(fmt.Sprintf("Scenario%02d", i+1), func(t *testing.T) {
			pipeline, err := dev.Compile(context.Background(), sc.source, sc.entry)
			if sc.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, sc.wantErr, err.Error())
				assert.Nil(t, pipeline)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sc.entry, pipeline.EntryPoint())
			assert.GreaterOrEqual(t, pipeline.ExecutionWidth(), 1)
			assert.GreaterOrEqual(t, pipeline.MaxThreadsPerGroup(), pipeline.ExecutionWidth())
		})
	}
}

func TestCPUDevice_NewBuffer(t *testing.T) {
	dev := NewCPUDevice(nil)

	_, err := dev.NewBuffer(0)
	require.Error(t, err)
	_, err = dev.NewBuffer(-16)
	require.Error(t, err)

	buf, err := dev.NewBuffer(128)
	require.NoError(t, err)
	assert.Equal(t, 128, buf.Size())
	assert.Len(t, buf.Bytes(), 128)

	// The view is writable and stable
	buf.Bytes()[0] = 0xAB
	assert.Equal(t, byte(0xAB), buf.Bytes()[0])
}

func TestCPUDevice_DispatchVecAdd(t *testing.T) {
	dev := NewCPUDevice(slog.Default())
	pipeline, err := dev.Compile(context.Background(), sourceCommon+sourceVecAdd, "vec_add")
	require.NoError(t, err)

	const n = 1024
	a, err := dev.NewBuffer(n * 4)
	require.NoError(t, err)
	b, err := dev.NewBuffer(n * 4)
	require.NoError(t, err)
	out, err := dev.NewBuffer(n * 4)
	require.NoError(t, err)

	av, bv := floatsOf(t, a), floatsOf(t, b)
	for i := 0; i < n; i++ {
		av[i] = float32(i)
		bv[i] = float32(3 * i)
	}

	grid := Grid{X: n, Y: 1, Z: 1}
	group := Grid{X: 32, Y: 1, Z: 1}
	require.NoError(t, pipeline.Dispatch(context.Background(), grid, group, []Buffer{a, b, out}))

	ov := floatsOf(t, out)
	for i := 0; i < n; i++ {
		require.Equal(t, float32(4*i), ov[i], "index %d", i)
	}
}

func TestCPUDevice_DispatchTransferRoundTrip(t *testing.T) {
	dev := NewCPUDevice(nil)
	pipeline, err := dev.Compile(context.Background(), sourceCommon+sourceTransfer, "transfer")
	require.NoError(t, err)

	const n = 64
	in, err := dev.NewBuffer(n * 4)
	require.NoError(t, err)
	out, err := dev.NewBuffer(n * 4)
	require.NoError(t, err)

	iv := floatsOf(t, in)
	for i := range iv {
		iv[i] = float32(i) * 0.5
	}

	grid := Grid{X: n, Y: 1, Z: 1}
	group := Grid{X: 32, Y: 1, Z: 1}
	require.NoError(t, pipeline.Dispatch(context.Background(), grid, group, []Buffer{in, out}))
	assert.Equal(t, in.Bytes(), out.Bytes())
}

func TestCPUDevice_DispatchMatMul(t *testing.T) {
	dev := NewCPUDevice(nil)
	source := sourceCommon + "kernel void matmul(device const float *a, device const float *b, device float *result, device const int *dims, uint2 gid [[thread_position_in_grid]]) {}"
	pipeline, err := dev.Compile(context.Background(), source, "matmul")
	require.NoError(t, err)

	// A: 2x3, B: 3x2, C: 2x2
	a, _ := dev.NewBuffer(6 * 4)
	b, _ := dev.NewBuffer(6 * 4)
	out, _ := dev.NewBuffer(4 * 4)
	dims, _ := dev.NewBuffer(3 * 4)

	copy(floatsOf(t, a), []float32{1, 2, 3, 4, 5, 6})
	copy(floatsOf(t, b), []float32{7, 8, 9, 10, 11, 12})
	copy(int32View(dims.Bytes()), []int32{2, 3, 2})

	grid := Grid{X: 2, Y: 2, Z: 1}
	group := Grid{X: 2, Y: 2, Z: 1}
	require.NoError(t, pipeline.Dispatch(context.Background(), grid, group, []Buffer{a, b, out, dims}))

	// [1*7+2*9+3*11, 1*8+2*10+3*12] = [58, 64]
	// [4*7+5*9+6*11, 4*8+5*10+6*12] = [139, 154]
	assert.Equal(t, []float32{58, 64, 139, 154}, floatsOf(t, out))
}

func TestCPUDevice_DispatchValidation(t *testing.T) {
	dev := NewCPUDevice(nil)
	pipeline, err := dev.Compile(context.Background(), sourceCommon+sourceTransfer, "transfer")
	require.NoError(t, err)

	buf, err := dev.NewBuffer(16)
	require.NoError(t, err)

	err = pipeline.Dispatch(context.Background(), Grid{X: 0, Y: 1, Z: 1}, Grid{X: 1, Y: 1, Z: 1}, []Buffer{buf, buf})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid grid")

	err = pipeline.Dispatch(context.Background(), Grid{X: 4, Y: 1, Z: 1}, Grid{X: 0, Y: 1, Z: 1}, []Buffer{buf, buf})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid threadgroup")

	// Wrong argument count surfaces the kernel's own error
	err = pipeline.Dispatch(context.Background(), Grid{X: 4, Y: 1, Z: 1}, Grid{X: 4, Y: 1, Z: 1}, []Buffer{buf})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `kernel "transfer" failed`)
}

func TestCPUDevice_RegisterKernel(t *testing.T) {
	dev := NewCPUDevice(nil)

	called := 0
	dev.RegisterKernel("fill_ones", func(args [][]byte, grid Grid) error {
		called++
		out := float32View(args[0])
		for i := 0; i < grid.Threads() && i < len(out); i++ {
			out[i] = 1
		}
		return nil
	})

	source := sourceCommon + "kernel void fill_ones(device float *result, uint index [[thread_position_in_grid]]) { result[index] = 1.0; }"
	pipeline, err := dev.Compile(context.Background(), source, "fill_ones")
	require.NoError(t, err)

	buf, err := dev.NewBuffer(8 * 4)
	require.NoError(t, err)
	grid := Grid{X: 8, Y: 1, Z: 1}
	require.NoError(t, pipeline.Dispatch(context.Background(), grid, Grid{X: 8, Y: 1, Z: 1}, []Buffer{buf}))

	assert.Equal(t, 1, called)
	for _, v := range floatsOf(t, buf) {
		assert.Equal(t, float32(1), v)
	}
}

func TestGrid(t *testing.T) {
	assert.Equal(t, 6, Grid{X: 1, Y: 2, Z: 3}.Threads())
	assert.True(t, Grid{X: 1, Y: 1, Z: 1}.Valid())
	assert.False(t, Grid{X: 0, Y: 1, Z: 1}.Valid())
	assert.False(t, Grid{X: 1, Y: -1, Z: 1}.Valid())
}

func TestFactoryDefaultsToCPU(t *testing.T) {
	dev, err := New("cpu", slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "cpu", dev.Info().Backend)
	require.NoError(t, dev.Close())

	_, err = New("nonsense", nil)
	require.Error(t, err)
}
