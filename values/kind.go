// Package values is the tagged value model of cached results. Every value a
// selected field can hold is exactly one Kind; objects and composite lists
// are chunks: raw result data bound to the selection and operation it was
// indexed with. Chunks sharing an identity key are read together through
// aggregates.
package values

import "fmt"

type Kind uint8

const (
	KindUnknown Kind = iota
	KindScalar
	KindComplexScalar
	KindObject
	KindCompositeList
	KindCompositeNull
	KindCompositeUndefined
	KindLeafList
	KindLeafError
	KindLeafUndefined
	KindObjectAggregate
	KindCompositeListAggregate
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindComplexScalar:
		return "ComplexScalar"
	case KindObject:
		return "Object"
	case KindCompositeList:
		return "CompositeList"
	case KindCompositeNull:
		return "CompositeNull"
	case KindCompositeUndefined:
		return "CompositeUndefined"
	case KindLeafList:
		return "LeafList"
	case KindLeafError:
		return "LeafError"
	case KindLeafUndefined:
		return "LeafUndefined"
	case KindObjectAggregate:
		return "ObjectAggregate"
	case KindCompositeListAggregate:
		return "CompositeListAggregate"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

// Unreachable panics about a value kind a switch does not handle.
func Unreachable(v any) {
	if val, ok := v.(Value); ok && val != nil {
		panic(fmt.Sprintf("unreachable variant: %v", val.Kind()))
	}
	panic(fmt.Sprintf("unreachable variant: %v", v))
}

// Assert panics when an invariant does not hold.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantError{fmt.Sprintf(format, args...)})
	}
}

// InvariantError is the panic value of a failed Assert.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}
