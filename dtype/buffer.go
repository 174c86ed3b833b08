package dtype

import (
	"encoding/binary"
	"math"
)

// Buffer is a typed view over transported samples. Fixed types use
// Data, sized to a whole number of samples; object types use Objects.
type Buffer struct {
	Type    Type
	Data    []byte
	Objects []interface{}
}

// Len returns the number of samples or objects in the buffer.
func (b Buffer) Len() int {
	if b.Type.Fixed() {
		return len(b.Data) / b.Type.Size
	}
	return len(b.Objects)
}

// Slice returns a sub-buffer covering samples [from, to).
func (b Buffer) Slice(from, to int) Buffer {
	if b.Type.Fixed() {
		return Buffer{Type: b.Type, Data: b.Data[from*b.Type.Size : to*b.Type.Size]}
	}
	return Buffer{Type: b.Type, Objects: b.Objects[from:to]}
}

// MakeFixed allocates a fixed-type buffer of n samples.
func MakeFixed(t Type, n int) Buffer {
	return Buffer{Type: t, Data: make([]byte, n*t.Size)}
}

// MakeObjects wraps objects into an object-type buffer.
func MakeObjects(t Type, objects ...interface{}) Buffer {
	return Buffer{Type: t, Objects: objects}
}

// Byte-level sample accessors. Blocks use these to operate on ring
// slices without allocating converted copies.

// Float32At reads the i-th real32 sample.
func Float32At(data []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
}

// PutFloat32 writes the i-th real32 sample.
func PutFloat32(data []byte, i int, v float32) {
	binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
}

// Complex64At reads the i-th complex32 sample.
func Complex64At(data []byte, i int) complex64 {
	re := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8:]))
	im := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8+4:]))
	return complex(re, im)
}

// PutComplex64 writes the i-th complex32 sample.
func PutComplex64(data []byte, i int, v complex64) {
	binary.LittleEndian.PutUint32(data[i*8:], math.Float32bits(real(v)))
	binary.LittleEndian.PutUint32(data[i*8+4:], math.Float32bits(imag(v)))
}

// Float32s decodes a whole real32 slice. It allocates; intended for
// sinks and tests, not for per-sample hot paths.
func Float32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = Float32At(data, i)
	}
	return out
}

// AppendFloat32s encodes samples to the end of a real32 byte slice.
func AppendFloat32s(data []byte, values ...float32) []byte {
	off := len(data)
	data = append(data, make([]byte, len(values)*4)...)
	for i, v := range values {
		PutFloat32(data[off:], i, v)
	}
	return data
}
