package facematch

import (
	"fmt"
	"math"
)

var quantizeScale = math.Pow10(QuantizePrecision)

// Validate returns ErrDimensionMismatch unless d has exactly DescriptorSize components.
func (d Descriptor) Validate() error {
	if len(d) != DescriptorSize {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d), DescriptorSize)
	}
	return nil
}

// Clone returns a copy of d that shares no memory with it.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Quantize rounds every component to QuantizePrecision decimal digits,
// half away from zero. The input is not modified.
func Quantize(d Descriptor) Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	for i, v := range d {
		out[i] = roundComponent(v)
	}
	return out
}

func roundComponent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*quantizeScale) / quantizeScale
}

// Float32 converts d for storage in float32 vector columns and indexes.
func (d Descriptor) Float32() []float32 {
	out := make([]float32, len(d))
	for i, v := range d {
		out[i] = float32(v)
	}
	return out
}

// FromFloat32 restores a stored descriptor. Components are re-quantized so the
// float32 round trip yields the same canonical values that were written.
func FromFloat32(v []float32) Descriptor {
	out := make(Descriptor, len(v))
	for i, f := range v {
		out[i] = roundComponent(float64(f))
	}
	return out
}
