package values

import (
	"fmt"
	"strings"

	"github.com/andreyvit/gqlcache/descriptor"
)

// Value is any value a selected field can hold.
type Value interface {
	Kind() Kind
}

// Chunk is a value backed by raw result data: *ObjectChunk or
// *CompositeListChunk. Chunks may be shared by several trees.
type Chunk interface {
	Value
	Raw() any
	Operation() *descriptor.Operation
	PossibleSelections() *descriptor.PossibleSelections
}

// ObjectValue is an object chunk or an aggregate of object chunks sharing an
// identity.
type ObjectValue interface {
	Value
	Key() string
	TypeName() string
	Chunks() []*ObjectChunk
}

// ListValue is a composite list chunk or an aggregate of list chunks
// representing the same logical list.
type ListValue interface {
	Value
	Len() int
	Item(i int) Value
	Chunks() []*CompositeListChunk
}

type (
	// Scalar is a leaf value compared by equality: strings, numbers, bools,
	// nil, time.Time.
	Scalar struct {
		Data any
	}

	// ComplexScalar is an opaque custom scalar with object structure, e.g.
	// a JSON scalar. Compared structurally.
	ComplexScalar struct {
		Data any
	}

	// LeafList is a list of scalars.
	LeafList struct {
		Data []any
	}

	// LeafError is a leaf field that resolved to an error.
	LeafError struct {
		Err *SourceError
	}

	// LeafUndefined is a selected leaf field missing from the raw data.
	LeafUndefined struct {
		Field *descriptor.FieldInfo
	}

	// CompositeNull is an explicit null in a composite field.
	CompositeNull struct {
		Selections *descriptor.PossibleSelections
	}

	// CompositeUndefined is a selected composite field missing from the raw
	// data.
	CompositeUndefined struct {
		Selections *descriptor.PossibleSelections
		Field      *descriptor.FieldInfo
	}
)

func (Scalar) Kind() Kind             { return KindScalar }
func (ComplexScalar) Kind() Kind      { return KindComplexScalar }
func (LeafList) Kind() Kind           { return KindLeafList }
func (LeafError) Kind() Kind          { return KindLeafError }
func (LeafUndefined) Kind() Kind      { return KindLeafUndefined }
func (CompositeNull) Kind() Kind      { return KindCompositeNull }
func (CompositeUndefined) Kind() Kind { return KindCompositeUndefined }

// SourceError marks a field that failed to resolve in a raw result.
type SourceError struct {
	Message    string         `msgpack:"message" json:"message"`
	Path       []any          `msgpack:"path,omitempty" json:"path,omitempty"`
	Extensions map[string]any `msgpack:"extensions,omitempty" json:"extensions,omitempty"`
}

func (e *SourceError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".") + ": " + e.Message
}

// NewLeafValue wraps raw data of a leaf field into exactly one leaf kind.
func NewLeafValue(raw any) Value {
	switch raw := raw.(type) {
	case *SourceError:
		return LeafError{raw}
	case []any:
		return LeafList{raw}
	case map[string]any:
		return ComplexScalar{raw}
	default:
		return Scalar{raw}
	}
}

func NewLeafUndefined(f *descriptor.FieldInfo) Value {
	return LeafUndefined{f}
}

func NewCompositeNull(ps *descriptor.PossibleSelections) Value {
	return CompositeNull{ps}
}

func NewCompositeUndefined(ps *descriptor.PossibleSelections, f *descriptor.FieldInfo) Value {
	return CompositeUndefined{ps, f}
}

// LeafRaw returns the raw data behind a leaf value.
func LeafRaw(v Value) any {
	switch v := v.(type) {
	case Scalar:
		return v.Data
	case ComplexScalar:
		return v.Data
	case LeafList:
		return v.Data
	case LeafError:
		return v.Err
	default:
		Unreachable(v)
		return nil
	}
}

// FieldKey identifies a field value across operations, see
// descriptor.Operation.FieldKey.
func FieldKey(op *descriptor.Operation, f *descriptor.FieldInfo) string {
	return op.FieldKey(f)
}
