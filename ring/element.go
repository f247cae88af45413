// element.go
//
// Transported values are read and written by the peer as raw bytes, so T
// must be plain data: fixed size, no pointers, no runtime-managed headers.
// Go cannot state that as a type constraint, so it is checked once at
// construction.

package ring

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrElementType reports an element type the peer cannot copy bytewise.
var ErrElementType = errors.New("ring: element type is not plain data")

// CheckElement reports whether T is plain, non-empty, fixed-size data.
func CheckElement[T any]() error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Size() == 0 {
		return fmt.Errorf("%w: %v has zero size", ErrElementType, t)
	}
	if t.Size() > math.MaxUint32 {
		return fmt.Errorf("%w: %v is %d bytes", ErrElementType, t, t.Size())
	}
	if path := indirection(t); path != "" {
		return fmt.Errorf("%w: %v holds %s", ErrElementType, t, path)
	}
	return nil
}

// indirection returns a description of the first non-plain component of t,
// or "" if there is none.
func indirection(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return ""
	case reflect.Array:
		return indirection(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if s := indirection(f.Type); s != "" {
				return f.Name + " (" + s + ")"
			}
		}
		return ""
	default:
		return t.Kind().String()
	}
}
