package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/swarmml/swarmtrain/tensor"
)

// Hash computes a content digest of the parameters for cross-peer
// consistency auditing. Parameters are fed in canonical construction order,
// name bytes first, then raw weight bytes little-endian in the tensor's
// declared precision. Two peers holding bit-identical weights produce the
// same digest; any single-bit difference changes it.
func Hash(p *Parameters) string {
	h := sha256.New()
	var buf [8]byte
	for _, name := range p.Names() {
		t, _ := p.Get(name)
		h.Write([]byte(name))
		for _, v := range t.Data {
			switch t.DType {
			case tensor.Float32:
				binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(float32(v)))
				h.Write(buf[:4])
			default:
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				h.Write(buf[:])
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
