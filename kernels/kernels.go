// Package kernels ships the kernel sources bundled with the bridge, in both
// Metal Shading Language and WGSL. Entry point names are identical across
// dialects and match the CPU backend's built-in implementations.
package kernels

import _ "embed"

//go:embed transfer.metal
var TransferMSL string

//go:embed transfer.wgsl
var TransferWGSL string

//go:embed vec_add.metal
var VecAddMSL string

//go:embed vec_add.wgsl
var VecAddWGSL string

//go:embed vec_mul.metal
var VecMulMSL string

//go:embed vec_scale.metal
var VecScaleMSL string

//go:embed matmul.metal
var MatMulMSL string

// ForBackend returns the source for an entry point in the dialect the given
// device backend compiles, or "" if the kernel is not bundled for it.
func ForBackend(backend, entryPoint string) string {
	switch backend {
	case "webgpu":
		switch entryPoint {
		case "transfer":
			return TransferWGSL
		case "vec_add":
			return VecAddWGSL
		}
		return ""
	default:
		// MSL declarations double as the reference dialect the CPU
		// backend validates against.
		switch entryPoint {
		case "transfer":
			return TransferMSL
		case "vec_add":
			return VecAddMSL
		case "vec_mul":
			return VecMulMSL
		case "vec_scale":
			return VecScaleMSL
		case "matmul":
			return MatMulMSL
		}
		return ""
	}
}
