// Package dtypes defines the DType enum describing the element type of the
// numeric buffers handled by the descriptor compiler and its backends.
//
// Coefficient arrays are canonically held as float64; DType matters at the
// execution boundary, where a backend declares what element type its flat
// operand buffers use.
package dtypes

import (
	"reflect"

	"github.com/x448/float16"
)

// DType is the type of the elements of a flat numeric buffer.
type DType int32

//go:generate go tool enumer -type DType dtypes.go

const (
	InvalidDType DType = iota
	Float16
	Float32
	Float64
	Int32
	Int64
)

// Aliases following the XLA-style short names.
const (
	F16 = Float16
	F32 = Float32
	F64 = Float64
	S32 = Int32
	S64 = Int64
)

// Supported lists the Go types a buffer element may take.
// float16.Float16 is stored as its uint16 bit pattern.
type Supported interface {
	float16.Float16 | float32 | float64 | int32 | int64
}

// Float are the floating point types a coefficient buffer can be converted to.
type Float interface {
	float32 | float64
}

// Memory returns the number of bytes used per element.
func (dtype DType) Memory() uintptr {
	switch dtype {
	case Float16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		return 0
	}
}

// SizeForDimensions returns the number of bytes needed to store an array of
// the given dimensions. Scalars (no dimensions) use one element.
func (dtype DType) SizeForDimensions(dimensions ...int) uintptr {
	size := dtype.Memory()
	for _, dim := range dimensions {
		size *= uintptr(dim)
	}
	return size
}

// IsFloat reports whether dtype is one of the floating point types.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// GoType returns the reflect.Type of the Go type used to store one element.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float16:
		return reflect.TypeOf(float16.Float16(0))
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	}
	return nil
}

// FromGoType returns the DType for the Go type given as a generic parameter.
func FromGoType[T Supported]() DType {
	var t T
	return FromType(reflect.TypeOf(t))
}

// FromType returns the DType for the given reflect.Type, or InvalidDType if
// the type is not supported.
func FromType(t reflect.Type) DType {
	switch t {
	case reflect.TypeOf(float16.Float16(0)):
		return Float16
	case reflect.TypeOf(float32(0)):
		return Float32
	case reflect.TypeOf(float64(0)):
		return Float64
	case reflect.TypeOf(int32(0)):
		return Int32
	case reflect.TypeOf(int64(0)):
		return Int64
	}
	return InvalidDType
}

// MapOfNames maps the various spellings of each dtype name (Go-style, short
// XLA-style, lower case) to the DType.
var MapOfNames = map[string]DType{
	"Float16": Float16, "float16": Float16, "F16": Float16, "f16": Float16,
	"Float32": Float32, "float32": Float32, "F32": Float32, "f32": Float32,
	"Float64": Float64, "float64": Float64, "F64": Float64, "f64": Float64,
	"Int32": Int32, "int32": Int32, "S32": Int32, "s32": Int32,
	"Int64": Int64, "int64": Int64, "S64": Int64, "s64": Int64,
}

// ToFloat64 converts one element of any supported type to float64.
func ToFloat64[T Supported](value T) float64 {
	switch v := any(value).(type) {
	case float16.Float16:
		return float64(v.Float32())
	case float32:
		return float64(v)
	case float64:
		return v
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// FromFloat64 converts a float64 to the given supported type, rounding for
// the narrower float types.
func FromFloat64[T Supported](value float64) T {
	var t T
	switch any(t).(type) {
	case float16.Float16:
		return any(float16.Fromfloat32(float32(value))).(T)
	case float32:
		return any(float32(value)).(T)
	case float64:
		return any(value).(T)
	case int32:
		return any(int32(value)).(T)
	case int64:
		return any(int64(value)).(T)
	}
	return t
}
