package values

import "github.com/andreyvit/gqlcache/descriptor"

// CompositeListChunk is a list of objects (or nested lists) bound to the item
// selection. Items are set by the indexer.
type CompositeListChunk struct {
	data     []any
	possible *descriptor.PossibleSelections
	op       *descriptor.Operation
	items    []Value
}

func NewCompositeListChunk(data []any, ps *descriptor.PossibleSelections, op *descriptor.Operation) *CompositeListChunk {
	return &CompositeListChunk{
		data:     data,
		possible: ps,
		op:       op,
		items:    make([]Value, len(data)),
	}
}

func (c *CompositeListChunk) Kind() Kind                                         { return KindCompositeList }
func (c *CompositeListChunk) Raw() any                                           { return c.data }
func (c *CompositeListChunk) Data() []any                                        { return c.data }
func (c *CompositeListChunk) PossibleSelections() *descriptor.PossibleSelections { return c.possible }
func (c *CompositeListChunk) Operation() *descriptor.Operation                   { return c.op }
func (c *CompositeListChunk) Len() int                                           { return len(c.data) }
func (c *CompositeListChunk) Chunks() []*CompositeListChunk                      { return []*CompositeListChunk{c} }

// SetItem records an indexed item. Only the indexer calls it.
func (c *CompositeListChunk) SetItem(i int, v Value) {
	c.items[i] = v
}

func (c *CompositeListChunk) Item(i int) Value {
	if v := c.items[i]; v != nil {
		return v
	}
	if c.data[i] == nil {
		return NewCompositeNull(c.possible)
	}
	Assert(false, "list item %d was not indexed", i)
	return nil
}

// CompositeListAggregate reads several chunks of the same logical list
// together; item i aggregates item i of every chunk long enough to have it.
type CompositeListAggregate struct {
	chunks []*CompositeListChunk
}

func NewListAggregate(chunks ...*CompositeListChunk) ListValue {
	Assert(len(chunks) > 0, "empty list aggregate")
	if len(chunks) == 1 {
		return chunks[0]
	}
	return &CompositeListAggregate{chunks}
}

func (a *CompositeListAggregate) Kind() Kind                    { return KindCompositeListAggregate }
func (a *CompositeListAggregate) Chunks() []*CompositeListChunk { return a.chunks }
func (a *CompositeListAggregate) Len() int                      { return a.chunks[0].Len() }

func (a *CompositeListAggregate) Item(i int) Value {
	var items []Value
	for _, c := range a.chunks {
		if i < c.Len() {
			items = append(items, c.Item(i))
		}
	}
	return AggregateValues(items)
}

// AggregateValues combines values of the same logical field found in
// different chunks. Object values aggregate into an ObjectAggregate, list
// values into a CompositeListAggregate; otherwise the first value wins.
func AggregateValues(vals []Value) Value {
	switch len(vals) {
	case 0:
		return nil
	case 1:
		return vals[0]
	}
	first := vals[0]
	switch {
	case IsObjectValue(first):
		var chunks []*ObjectChunk
		key := first.(ObjectValue).Key()
		for _, v := range vals {
			if ov, ok := v.(ObjectValue); ok && ov.Key() == key {
				chunks = append(chunks, ov.Chunks()...)
			}
		}
		return NewObjectAggregate(chunks...)
	case IsCompositeListValue(first):
		var chunks []*CompositeListChunk
		for _, v := range vals {
			if lv, ok := v.(ListValue); ok && lv.Len() == first.(ListValue).Len() {
				chunks = append(chunks, lv.Chunks()...)
			}
		}
		return NewListAggregate(chunks...)
	default:
		return first
	}
}
