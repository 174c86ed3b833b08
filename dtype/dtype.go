// Package dtype describes the sample types that flow between blocks. It
// allows to:
//	- register fixed-size numeric records addressable by index
//	- register variable-sized structured objects with a codec pair
//	- attach capabilities used by predicate-typed inputs
package dtype

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// ErrTypeConflict is returned when a name is re-registered with a
// different definition.
var ErrTypeConflict = errors.New("type conflict")

// ErrShortInput signals that a process call needs more input samples
// before it can produce output. It is consumed by the runtime and never
// surfaces to the user.
var ErrShortInput = errors.New("short input")

type (
	// EncodeFunc turns an object into its framed byte form.
	EncodeFunc func(interface{}) ([]byte, error)

	// DecodeFunc is the inverse of EncodeFunc.
	DecodeFunc func([]byte) (interface{}, error)

	// Type describes one sample kind. Identity is the name: two types
	// are equal iff their names are equal. Fixed types have Size > 0,
	// object types carry a codec pair instead.
	Type struct {
		Name   string
		Size   int
		Align  int
		Encode EncodeFunc
		Decode DecodeFunc
	}
)

// Fixed reports whether all samples of this type have identical size.
func (t Type) Fixed() bool {
	return t.Size > 0
}

// Equal compares types by name.
func (t Type) Equal(other Type) bool {
	return t.Name == other.Name
}

func (t Type) String() string {
	return t.Name
}

// CapJSON marks types whose byte form is valid JSON.
const CapJSON = "json"

var registry = struct {
	sync.RWMutex
	types map[string]Type
	caps  map[string]map[string]struct{}
}{
	types: make(map[string]Type),
	caps:  make(map[string]map[string]struct{}),
}

// RegisterFixed registers a fixed record type. Registration is
// idempotent for identical definitions.
func RegisterFixed(name string, size, align int) (Type, error) {
	if size <= 0 || align <= 0 {
		return Type{}, fmt.Errorf("fixed type %q: invalid size %d align %d", name, size, align)
	}
	registry.Lock()
	defer registry.Unlock()
	if existing, ok := registry.types[name]; ok {
		if existing.Size == size && existing.Align == align && existing.Encode == nil {
			return existing, nil
		}
		return Type{}, fmt.Errorf("%w: %q already registered with a different definition", ErrTypeConflict, name)
	}
	t := Type{Name: name, Size: size, Align: align}
	registry.types[name] = t
	return t, nil
}

// MustRegisterFixed is like RegisterFixed but panics on conflict.
func MustRegisterFixed(name string, size, align int) Type {
	t, err := RegisterFixed(name, size, align)
	if err != nil {
		panic(err)
	}
	return t
}

// RegisterObject registers a structured object type with its codec
// pair. Re-registering the same name with the same codec functions is a
// no-op; a different codec is a conflict.
func RegisterObject(name string, encode EncodeFunc, decode DecodeFunc) (Type, error) {
	if encode == nil || decode == nil {
		return Type{}, fmt.Errorf("object type %q: codec must not be nil", name)
	}
	registry.Lock()
	defer registry.Unlock()
	if existing, ok := registry.types[name]; ok {
		if samePointer(existing.Encode, encode) && samePointer(existing.Decode, decode) {
			return existing, nil
		}
		return Type{}, fmt.Errorf("%w: %q already registered with a different definition", ErrTypeConflict, name)
	}
	t := Type{Name: name, Encode: encode, Decode: decode}
	registry.types[name] = t
	return t, nil
}

func samePointer(a, b interface{}) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Lookup returns a registered type by name.
func Lookup(name string) (Type, bool) {
	registry.RLock()
	defer registry.RUnlock()
	t, ok := registry.types[name]
	return t, ok
}

// AddCapability attaches a capability to a registered type. Predicate
// inputs match producer types against these sets.
func AddCapability(typeName, capability string) error {
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.types[typeName]; !ok {
		return fmt.Errorf("capability %q: type %q not registered", capability, typeName)
	}
	caps, ok := registry.caps[typeName]
	if !ok {
		caps = make(map[string]struct{})
		registry.caps[typeName] = caps
	}
	caps[capability] = struct{}{}
	return nil
}

// HasCapability reports whether the named type carries a capability.
func HasCapability(typeName, capability string) bool {
	registry.RLock()
	defer registry.RUnlock()
	_, ok := registry.caps[typeName][capability]
	return ok
}

// Built-in numeric primitives.
var (
	Real32    = MustRegisterFixed("real32", 4, 4)
	Complex32 = MustRegisterFixed("complex32", 8, 4)
	Byte      = MustRegisterFixed("byte", 1, 1)
	Bit       = MustRegisterFixed("bit", 1, 1)
)

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate float64, samples int64) time.Duration {
	return time.Duration(float64(samples) / sampleRate * float64(time.Second))
}
