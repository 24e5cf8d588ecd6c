// Package tensor provides the minimal tensor support the conversion
// pipeline needs: a raw float32 tensor plus the dense kernels used by the
// single validation forward pass. Everything runs on the CPU, sequentially.
package tensor

import (
	"fmt"
	"unsafe"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types. Traced policies carry float32 weights only, but
// the format reserves room for wider types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// RawTensor is a dense row-major tensor over a flat byte buffer.
type RawTensor struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewRaw creates a zero-initialized RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromFloat32 creates a float32 RawTensor backed by a copy of values.
func FromFloat32(values []float32, shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	if len(values) != shape.NumElements() {
		return nil, fmt.Errorf("value count %d does not match shape %v (%d elements)",
			len(values), shape, shape.NumElements())
	}
	copy(t.AsFloat32(), values)
	return t, nil
}

// FromBytes creates a RawTensor backed by a copy of the raw byte payload.
func FromBytes(data []byte, shape Shape, dtype DataType) (*RawTensor, error) {
	t, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != len(t.data) {
		return nil, fmt.Errorf("payload is %d bytes, shape %v with dtype %s needs %d",
			len(data), shape, dtype, len(t.data))
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor dimensions.
func (t *RawTensor) Shape() Shape {
	return t.shape
}

// DType returns the element type.
func (t *RawTensor) DType() DataType {
	return t.dtype
}

// NumElements returns the total element count.
func (t *RawTensor) NumElements() int {
	return t.shape.NumElements()
}

// Data returns the underlying byte buffer.
func (t *RawTensor) Data() []byte {
	return t.data
}

// AsFloat32 reinterprets the buffer as a []float32 view.
// Panics if the tensor is not Float32.
func (t *RawTensor) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("AsFloat32 called on %s tensor", t.dtype))
	}
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Clone returns a deep copy of the tensor.
func (t *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return &RawTensor{data: data, shape: t.shape.Clone(), dtype: t.dtype}
}
