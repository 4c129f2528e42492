package backend

import (
	"encoding/binary"

	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// halfToFloat32 converts little endian IEEE 754 half precision values to
// float32
func halfToFloat32(raw []byte) []float32 {

	out := make([]float32, len(raw)/2)

	for i := range out {
		out[i] = f16LookupTable[binary.LittleEndian.Uint16(raw[i*2:])]
	}

	return out
}
