package biometric

import (
	"encoding/binary"
	"errors"
	"math"
)

// DefaultTolerance is the maximum Euclidean distance accepted as a match.
const DefaultTolerance = 0.6

var (
	ErrDimension     = errors.New("biometric: vector dimension mismatch")
	ErrInvalidVector = errors.New("biometric: invalid vector encoding")
)

// EncodeVector packs v as big-endian IEEE-754 float64 values.
func EncodeVector(v []float64) []byte {
	out := make([]byte, 8*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint64(out[i*8:], math.Float64bits(f))
	}
	return out
}

func DecodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, ErrInvalidVector
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.BigEndian.Uint64(b[i*8:]))
	}
	return v, nil
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimension
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Valid reports whether every component is finite.
func Valid(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return len(v) > 0
}
