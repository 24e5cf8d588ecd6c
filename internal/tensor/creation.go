package tensor

import (
	"math"
	"math/rand"
)

// Randn creates a float32 tensor with values drawn from a standard normal
// distribution, via the Box-Muller transform.
func Randn(shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}

	data := t.AsFloat32()
	for i := 0; i < len(data); i += 2 {
		u1 := rand.Float64() //nolint:gosec // G404: synthetic model inputs, not security material
		u2 := rand.Float64() //nolint:gosec // G404: synthetic model inputs, not security material
		z0 := math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
		z1 := math.Sqrt(-2.0*math.Log(u1)) * math.Sin(2.0*math.Pi*u2)
		data[i] = float32(z0)
		if i+1 < len(data) {
			data[i+1] = float32(z1)
		}
	}
	return t, nil
}
