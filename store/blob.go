package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector converts a float32 vector to the persisted blob format:
// tightly packed little-endian IEEE-754 float32, no header. The blob is
// exactly 4*len(v) bytes; the dimension is implicit in the length.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector converts a persisted blob back to a float32 vector.
// The blob length must be a multiple of 4.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
