package main

import (
	"encoding/binary"
	"math"
)

// Buffer views are raw bytes; floats cross them little-endian, matching the
// layout both Metal and WGSL kernels see.
func putFloat(view []byte, i int, v float32) {
	binary.LittleEndian.PutUint32(view[i*4:], math.Float32bits(v))
}

func readFloat(view []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(view[i*4:]))
}
