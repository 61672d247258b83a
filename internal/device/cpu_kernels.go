package device

import (
	"fmt"
	"unsafe"

	"gonum.org/v1/gonum/mat"
)

// builtinKernels maps entry point names to their CPU implementations. The set
// mirrors the kernels shipped with the bridge's kernel sources; tests and
// embedders can extend it per device via RegisterKernel.
var builtinKernels = map[string]KernelFunc{
	"transfer":  kernelTransfer,
	"vec_add":   kernelVecAdd,
	"vec_mul":   kernelVecMul,
	"vec_scale": kernelVecScale,
	"matmul":    kernelMatMul,
}

// float32View reinterprets a byte view as float32 elements without copying,
// matching how a kernel addresses a device buffer.
func float32View(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func int32View(b []byte) []int32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// kernelTransfer copies input to result one element per thread:
//
//	result[i] = input[i]
func kernelTransfer(args [][]byte, grid Grid) error {
	if len(args) != 2 {
		return fmt.Errorf("transfer expects 2 buffers, got %d", len(args))
	}
	in, out := float32View(args[0]), float32View(args[1])
	for i := 0; i < grid.Threads() && i < len(in) && i < len(out); i++ {
		out[i] = in[i]
	}
	return nil
}

// kernelVecAdd computes result[i] = a[i] + b[i].
func kernelVecAdd(args [][]byte, grid Grid) error {
	if len(args) != 3 {
		return fmt.Errorf("vec_add expects 3 buffers, got %d", len(args))
	}
	a, b, out := float32View(args[0]), float32View(args[1]), float32View(args[2])
	for i := 0; i < grid.Threads() && i < len(a) && i < len(b) && i < len(out); i++ {
		out[i] = a[i] + b[i]
	}
	return nil
}

// kernelVecMul computes result[i] = a[i] * b[i].
func kernelVecMul(args [][]byte, grid Grid) error {
	if len(args) != 3 {
		return fmt.Errorf("vec_mul expects 3 buffers, got %d", len(args))
	}
	a, b, out := float32View(args[0]), float32View(args[1]), float32View(args[2])
	for i := 0; i < grid.Threads() && i < len(a) && i < len(b) && i < len(out); i++ {
		out[i] = a[i] * b[i]
	}
	return nil
}

// kernelVecScale computes result[i] = a[i] * scale[0].
func kernelVecScale(args [][]byte, grid Grid) error {
	if len(args) != 3 {
		return fmt.Errorf("vec_scale expects 3 buffers, got %d", len(args))
	}
	a, scale, out := float32View(args[0]), float32View(args[1]), float32View(args[2])
	if len(scale) < 1 {
		return fmt.Errorf("vec_scale scale buffer too small")
	}
	s := scale[0]
	for i := 0; i < grid.Threads() && i < len(a) && i < len(out); i++ {
		out[i] = a[i] * s
	}
	return nil
}

// kernelMatMul computes C = A * B where A is m×k, B is k×n and C is m×n, all
// row-major float32. Dimensions arrive in a fourth int32 buffer [m, k, n].
func kernelMatMul(args [][]byte, _ Grid) error {
	if len(args) != 4 {
		return fmt.Errorf("matmul expects 4 buffers, got %d", len(args))
	}
	dims := int32View(args[3])
	if len(dims) < 3 {
		return fmt.Errorf("matmul dims buffer too small")
	}
	m, k, n := int(dims[0]), int(dims[1]), int(dims[2])
	if m <= 0 || k <= 0 || n <= 0 {
		return fmt.Errorf("matmul invalid dims m=%d k=%d n=%d", m, k, n)
	}

	a, b, out := float32View(args[0]), float32View(args[1]), float32View(args[2])
	if len(a) < m*k {
		return fmt.Errorf("matrix A size mismatch: expected %d, got %d", m*k, len(a))
	}
	if len(b) < k*n {
		return fmt.Errorf("matrix B size mismatch: expected %d, got %d", k*n, len(b))
	}
	if len(out) < m*n {
		return fmt.Errorf("matrix C size mismatch: expected %d, got %d", m*n, len(out))
	}

	am := mat.NewDense(m, k, Float32ToFloat64(a[:m*k]))
	bm := mat.NewDense(k, n, Float32ToFloat64(b[:k*n]))
	var cm mat.Dense
	cm.Mul(am, bm)

	copy(out, Float64ToFloat32(cm.RawMatrix().Data))
	return nil
}
