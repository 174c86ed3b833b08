package dtype_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio/dtype"
)

func TestRegisterFixed(t *testing.T) {
	registered, err := dtype.RegisterFixed("test.fixed", 4, 4)
	assert.NoError(t, err)
	assert.True(t, registered.Fixed())

	// identical definition is idempotent
	again, err := dtype.RegisterFixed("test.fixed", 4, 4)
	assert.NoError(t, err)
	assert.True(t, registered.Equal(again))

	// different definition conflicts
	_, err = dtype.RegisterFixed("test.fixed", 8, 8)
	assert.True(t, errors.Is(err, dtype.ErrTypeConflict))

	found, ok := dtype.Lookup("test.fixed")
	assert.True(t, ok)
	assert.Equal(t, 4, found.Size)

	_, ok = dtype.Lookup("test.unknown")
	assert.False(t, ok)
}

func TestRegisterFixedInvalid(t *testing.T) {
	_, err := dtype.RegisterFixed("test.invalid", 0, 1)
	assert.Error(t, err)
	_, err = dtype.RegisterFixed("test.invalid", 4, 0)
	assert.Error(t, err)
}

type note struct {
	Pitch  int    `json:"pitch"`
	Accent string `json:"accent"`
}

func encodeNote(obj interface{}) ([]byte, error) {
	n, ok := obj.(note)
	if !ok {
		return nil, fmt.Errorf("unexpected %T", obj)
	}
	return json.Marshal(n)
}

func decodeNote(data []byte) (interface{}, error) {
	var n note
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return n, nil
}

func TestRegisterObject(t *testing.T) {
	registered, err := dtype.RegisterObject("test.note", encodeNote, decodeNote)
	assert.NoError(t, err)
	assert.False(t, registered.Fixed())

	// same codec is idempotent
	_, err = dtype.RegisterObject("test.note", encodeNote, decodeNote)
	assert.NoError(t, err)

	// different codec conflicts
	_, err = dtype.RegisterObject("test.note", encodeNote, func([]byte) (interface{}, error) { return nil, nil })
	assert.True(t, errors.Is(err, dtype.ErrTypeConflict))

	// fixed name collides with object name
	_, err = dtype.RegisterFixed("test.note", 4, 4)
	assert.True(t, errors.Is(err, dtype.ErrTypeConflict))
}

func TestObjectRoundTrip(t *testing.T) {
	registered, err := dtype.RegisterObject("test.roundtrip", encodeNote, decodeNote)
	assert.NoError(t, err)

	values := []note{
		{},
		{Pitch: 60, Accent: "staccato"},
		{Pitch: -1, Accent: ""},
	}
	for _, v := range values {
		encoded, err := registered.Encode(v)
		assert.NoError(t, err)
		decoded, err := registered.Decode(encoded)
		assert.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestCapabilities(t *testing.T) {
	_, err := dtype.RegisterObject("test.capable", encodeNote, decodeNote)
	assert.NoError(t, err)

	assert.False(t, dtype.HasCapability("test.capable", dtype.CapJSON))
	assert.NoError(t, dtype.AddCapability("test.capable", dtype.CapJSON))
	assert.True(t, dtype.HasCapability("test.capable", dtype.CapJSON))

	assert.Error(t, dtype.AddCapability("test.not-registered", dtype.CapJSON))
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"real32", 4},
		{"complex32", 8},
		{"byte", 1},
		{"bit", 1},
	}
	for _, test := range tests {
		registered, ok := dtype.Lookup(test.name)
		assert.True(t, ok)
		assert.Equal(t, test.size, registered.Size)
	}
}

func TestAccessors(t *testing.T) {
	data := make([]byte, 4*4)
	for i := 0; i < 4; i++ {
		dtype.PutFloat32(data, i, float32(i)*1.5)
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, float32(i)*1.5, dtype.Float32At(data, i))
	}
	assert.Equal(t, []float32{0, 1.5, 3, 4.5}, dtype.Float32s(data))

	cdata := make([]byte, 2*8)
	dtype.PutComplex64(cdata, 0, complex(1, -1))
	dtype.PutComplex64(cdata, 1, complex(-2.5, 0.5))
	assert.Equal(t, complex64(complex(1, -1)), dtype.Complex64At(cdata, 0))
	assert.Equal(t, complex64(complex(-2.5, 0.5)), dtype.Complex64At(cdata, 1))
}

func TestBufferSlice(t *testing.T) {
	b := dtype.MakeFixed(dtype.Real32, 8)
	assert.Equal(t, 8, b.Len())
	sliced := b.Slice(2, 5)
	assert.Equal(t, 3, sliced.Len())

	objects := dtype.MakeObjects(dtype.Type{Name: "obj"}, 1, 2, 3)
	assert.Equal(t, 3, objects.Len())
	assert.Equal(t, 1, objects.Slice(0, 1).Len())
}

func TestDurationOf(t *testing.T) {
	assert.Equal(t, time.Second, dtype.DurationOf(44100, 44100))
	assert.Equal(t, 500*time.Millisecond, dtype.DurationOf(48000, 24000))
}
