package values

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/go-cmp/cmp"
)

// mixedNumbers compares numbers of different Go types by value at any depth,
// since decoders disagree on them (msgpack yields int64, JSON float64).
var mixedNumbers = cmp.FilterValues(func(a, b any) bool {
	_, aok := toFloat(reflect.ValueOf(a))
	_, bok := toFloat(reflect.ValueOf(b))
	return aok && bok
}, cmp.Comparer(func(a, b any) bool {
	fa, _ := toFloat(reflect.ValueOf(a))
	fb, _ := toFloat(reflect.ValueOf(b))
	return fa == fb
}))

// ScalarEqual compares raw leaf data. Comparable values of the same type are
// compared with ==, numbers of different Go types by value (also inside
// lists and objects), time.Time by instant, everything else structurally.
func ScalarEqual(a, b any) (eq bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() == rb.Type() && ra.Type().Comparable() {
		return a == b
	}
	if fa, ok := toFloat(ra); ok {
		fb, ok := toFloat(rb)
		return ok && fa == fb
	}
	defer func() {
		if recover() != nil {
			eq = reflect.DeepEqual(a, b)
		}
	}()
	return cmp.Equal(a, b, mixedNumbers)
}

// LeafEqual compares two leaf values of any leaf kind.
func LeafEqual(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case Scalar:
		return ScalarEqual(a.Data, b.(Scalar).Data)
	case ComplexScalar:
		return ScalarEqual(a.Data, b.(ComplexScalar).Data)
	case LeafList:
		return ScalarEqual(a.Data, b.(LeafList).Data)
	case LeafError:
		be := b.(LeafError).Err
		return a.Err == be || (a.Err != nil && be != nil && a.Err.Message == be.Message && ScalarEqual(a.Err.Path, be.Path))
	case LeafUndefined:
		return true
	default:
		Unreachable(a)
		return false
	}
}

func toFloat(v reflect.Value) (float64, bool) {
	if !v.IsValid() {
		return 0, false
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	if n, ok := v.Interface().(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
