package values

import (
	"slices"

	"github.com/andreyvit/gqlcache/descriptor"
)

// ObjectChunk is one operation's view of an object: the raw data, the
// selection it was indexed against, its identity key ("" when the object
// is not identifiable) and its type name ("" when unknown).
//
// Composite children are set by the indexer; leaf values are derived from
// raw data on access. Chunks carry no parent pointers: a chunk can be shared
// by trees that reach it through different parents.
type ObjectChunk struct {
	data      map[string]any
	possible  *descriptor.PossibleSelections
	selection *descriptor.Selection
	op        *descriptor.Operation
	key       string
	typeName  string

	fields  map[string]Value
	missing []*descriptor.FieldInfo
	partial map[string]struct{}

	byFieldKey map[string][]*descriptor.FieldInfo
}

func NewObjectChunk(data map[string]any, ps *descriptor.PossibleSelections, op *descriptor.Operation, key, typeName string) *ObjectChunk {
	Assert(data != nil, "object chunk without data")
	return &ObjectChunk{
		data:      data,
		possible:  ps,
		selection: ps.ForType(typeName),
		op:        op,
		key:       key,
		typeName:  typeName,
	}
}

func (c *ObjectChunk) Kind() Kind                                         { return KindObject }
func (c *ObjectChunk) Raw() any                                           { return c.data }
func (c *ObjectChunk) Data() map[string]any                               { return c.data }
func (c *ObjectChunk) Key() string                                        { return c.key }
func (c *ObjectChunk) IsNode() bool                                       { return c.key != "" }
func (c *ObjectChunk) TypeName() string                                   { return c.typeName }
func (c *ObjectChunk) Selection() *descriptor.Selection                   { return c.selection }
func (c *ObjectChunk) PossibleSelections() *descriptor.PossibleSelections { return c.possible }
func (c *ObjectChunk) Operation() *descriptor.Operation                   { return c.op }
func (c *ObjectChunk) Chunks() []*ObjectChunk                             { return []*ObjectChunk{c} }

// SetFieldValue records an indexed composite child. Only the indexer calls it.
func (c *ObjectChunk) SetFieldValue(dataKey string, v Value) {
	if c.fields == nil {
		c.fields = make(map[string]Value, c.selection.Len())
	}
	c.fields[dataKey] = v
}

// HasValue reports whether raw data contains the field.
func (c *ObjectChunk) HasValue(f *descriptor.FieldInfo) bool {
	_, ok := c.data[f.DataKey()]
	return ok
}

// FieldValue returns the value of a selected field, CompositeUndefined or
// LeafUndefined when the raw data lacks it.
func (c *ObjectChunk) FieldValue(f *descriptor.FieldInfo) Value {
	dataKey := f.DataKey()
	if f.IsComposite() {
		if v, ok := c.fields[dataKey]; ok {
			return v
		}
		raw, ok := c.data[dataKey]
		if !ok {
			return NewCompositeUndefined(f.Selection, f)
		}
		if raw == nil {
			return NewCompositeNull(f.Selection)
		}
		// not indexed: only happens for chunks built outside of a tree
		Assert(false, "composite field %s of %s was not indexed", f, c.Describe())
		return nil
	}
	raw, ok := c.data[dataKey]
	if !ok {
		return NewLeafUndefined(f)
	}
	return NewLeafValue(raw)
}

// IsSkipped reports whether the operation's directives exclude the field.
func (c *ObjectChunk) IsSkipped(f *descriptor.FieldInfo) bool {
	return f.IsConditional() && !c.op.IsIncluded(f)
}

// FieldsByKey returns the selected aliases of the logical field identified
// by the field key (see FieldKey). Skipped fields are excluded.
func (c *ObjectChunk) FieldsByKey(fieldKey string) []*descriptor.FieldInfo {
	if c.byFieldKey == nil {
		m := make(map[string][]*descriptor.FieldInfo, c.selection.Len())
		for _, f := range c.selection.Fields() {
			if c.IsSkipped(f) {
				continue
			}
			k := c.op.FieldKey(f)
			m[k] = append(m[k], f)
		}
		c.byFieldKey = m
	}
	return c.byFieldKey[fieldKey]
}

// FieldByKey returns the first selected alias for the field key.
func (c *ObjectChunk) FieldByKey(fieldKey string) *descriptor.FieldInfo {
	if fields := c.FieldsByKey(fieldKey); len(fields) > 0 {
		return fields[0]
	}
	return nil
}

func (c *ObjectChunk) MarkMissing(f *descriptor.FieldInfo) {
	if !slices.Contains(c.missing, f) {
		c.missing = append(c.missing, f)
	}
}

// MissingFields lists fields known to be absent: composite fields detected
// while indexing plus fields reported as missing by the writer.
func (c *ObjectChunk) MissingFields() []*descriptor.FieldInfo {
	return c.missing
}

func (c *ObjectChunk) IsIncomplete() bool {
	return len(c.missing) > 0
}

// MarkPartial records that the nested value of a field is incomplete.
func (c *ObjectChunk) MarkPartial(dataKey string) {
	if c.partial == nil {
		c.partial = make(map[string]struct{})
	}
	c.partial[dataKey] = struct{}{}
}

func (c *ObjectChunk) IsPartial(dataKey string) bool {
	_, ok := c.partial[dataKey]
	return ok
}

func (c *ObjectChunk) HasPartialFields() bool {
	return len(c.partial) > 0
}

func (c *ObjectChunk) Describe() string {
	if c.key != "" {
		return c.key
	}
	if c.typeName != "" {
		return "<" + c.typeName + ">"
	}
	return "<object>"
}

// ObjectAggregate reads several chunks of one entity as a single value.
type ObjectAggregate struct {
	chunks []*ObjectChunk
}

func NewObjectAggregate(chunks ...*ObjectChunk) ObjectValue {
	Assert(len(chunks) > 0, "empty object aggregate")
	if len(chunks) == 1 {
		return chunks[0]
	}
	return &ObjectAggregate{chunks}
}

func (a *ObjectAggregate) Kind() Kind             { return KindObjectAggregate }
func (a *ObjectAggregate) Chunks() []*ObjectChunk { return a.chunks }
func (a *ObjectAggregate) Key() string            { return a.chunks[0].key }

func (a *ObjectAggregate) TypeName() string {
	for _, c := range a.chunks {
		if c.typeName != "" {
			return c.typeName
		}
	}
	return ""
}

// ResolveField finds the value of a logical field in the first chunk that
// has it. When several chunks hold object or list values for the field,
// those are aggregated.
func ResolveField(obj ObjectValue, fieldKey string) (Value, bool) {
	var found []Value
	for _, c := range obj.Chunks() {
		for _, f := range c.FieldsByKey(fieldKey) {
			if !c.HasValue(f) {
				continue
			}
			v := c.FieldValue(f)
			if !IsObjectValue(v) && !IsCompositeListValue(v) {
				if len(found) == 0 {
					return v, true
				}
				continue
			}
			found = append(found, v)
			break
		}
	}
	if len(found) == 0 {
		return nil, false
	}
	return AggregateValues(found), true
}
