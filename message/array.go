package message

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementType is the closed set of scalar types a bulk Array may carry.
// Carrying bulk numeric data out-of-band from the JSON scalar frame, typed
// by one of a closed set of names, is what lets recv reconstruct the
// original byte order and shape without guessing.
type ElementType string

// Supported element types.
const (
	Float32 ElementType = "float32"
	Float64 ElementType = "float64"
	Int32   ElementType = "int32"
	Int64   ElementType = "int64"
	Uint8   ElementType = "uint8"
	Bool    ElementType = "bool"
)

func elemSize(t ElementType) (int, error) {
	switch t {
	case Float32, Int32:
		return 4, nil
	case Float64, Int64:
		return 8, nil
	case Uint8, Bool:
		return 1, nil
	default:
		return 0, fmt.Errorf("message: unknown element type %q", t)
	}
}

func shapeProduct(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Array is a bulk numeric payload: element type, shape, and contiguous
// little-endian bytes.
type Array struct {
	ElementType ElementType
	Shape       []int
	Bytes       []byte
}

// NewFloat32Array builds an Array from a flat float32 slice with the given
// shape. The caller is responsible for len(values) == product(shape).
func NewFloat32Array(shape []int, values []float32) *Array {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return &Array{ElementType: Float32, Shape: shape, Bytes: b}
}

// NewFloat64Array builds an Array from a flat float64 slice.
func NewFloat64Array(shape []int, values []float64) *Array {
	b := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return &Array{ElementType: Float64, Shape: shape, Bytes: b}
}

// NewInt32Array builds an Array from a flat int32 slice.
func NewInt32Array(shape []int, values []int32) *Array {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
	return &Array{ElementType: Int32, Shape: shape, Bytes: b}
}

// NewInt64Array builds an Array from a flat int64 slice.
func NewInt64Array(shape []int, values []int64) *Array {
	b := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(b[i*8:], uint64(v))
	}
	return &Array{ElementType: Int64, Shape: shape, Bytes: b}
}

// NewUint8Array builds an Array from a flat byte slice.
func NewUint8Array(shape []int, values []uint8) *Array {
	b := make([]byte, len(values))
	copy(b, values)
	return &Array{ElementType: Uint8, Shape: shape, Bytes: b}
}

// Float32 decodes the Array as a flat float32 slice.
func (a *Array) Float32() ([]float32, error) {
	if a.ElementType != Float32 {
		return nil, fmt.Errorf("message: array is %q, not float32", a.ElementType)
	}
	out := make([]float32, len(a.Bytes)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Bytes[i*4:]))
	}
	return out, nil
}

// Float64 decodes the Array as a flat float64 slice.
func (a *Array) Float64() ([]float64, error) {
	if a.ElementType != Float64 {
		return nil, fmt.Errorf("message: array is %q, not float64", a.ElementType)
	}
	out := make([]float64, len(a.Bytes)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Bytes[i*8:]))
	}
	return out, nil
}

// Int32 decodes the Array as a flat int32 slice.
func (a *Array) Int32() ([]int32, error) {
	if a.ElementType != Int32 {
		return nil, fmt.Errorf("message: array is %q, not int32", a.ElementType)
	}
	out := make([]int32, len(a.Bytes)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(a.Bytes[i*4:]))
	}
	return out, nil
}

// Int64 decodes the Array as a flat int64 slice.
func (a *Array) Int64() ([]int64, error) {
	if a.ElementType != Int64 {
		return nil, fmt.Errorf("message: array is %q, not int64", a.ElementType)
	}
	out := make([]int64, len(a.Bytes)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(a.Bytes[i*8:]))
	}
	return out, nil
}

// NumElements returns the element count implied by Shape.
func (a *Array) NumElements() int {
	return shapeProduct(a.Shape)
}
