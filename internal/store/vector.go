package store

import (
	"bytes"
	"encoding/binary"
	"math"
)

// encodeEmbedding serializes a []float32 into the little-endian byte
// layout sqlite-vec's vec0 virtual table expects, grounded on the
// teacher's encodeFloat32Slice (internal/store/vector_store.go).
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := &bytes.Buffer{}
	buf.Grow(len(vec) * 4)
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// decodeEmbedding is the inverse of encodeEmbedding, grounded on the
// teacher's decodeFloat32 (internal/store/vec_compat.go).
func decodeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
