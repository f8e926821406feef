package forest

import (
	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/values"
)

// IndexTree indexes the result of an operation.
//
// The root key comes from the key function and falls back to the
// operation's root key. Chunks of prev (or prev.Prev) whose raw value is the
// very same map or slice are reused instead of being rebuilt, as long as
// they were built for the same selection and operation. known lists fields
// the caller knows to be absent; composite fields absent from the result are
// detected here, absent leaf fields are not.
func IndexTree(env *Env, op *descriptor.Operation, result map[string]any, known *MissingFields, prev *IndexedTree) *IndexedTree {
	values.Assert(result != nil, "%v: nil result", op)
	t := newTree(env, op, result, prev)
	ix := newIndexer(env, op, t, known, prev)
	t.Root, _ = ix.object(result, op.Selections(), ParentRef{}, op.RootKey(), op.RootType())
	return t
}

// IndexObject indexes an object that is not the root of an operation
// result, e.g. a value read through a different selection than the one it
// was written with.
func IndexObject(env *Env, op *descriptor.Operation, data map[string]any, ps *descriptor.PossibleSelections, known *MissingFields, prev *IndexedTree) *IndexedTree {
	values.Assert(data != nil, "%v: nil object", op)
	t := newTree(env, op, data, prev)
	ix := newIndexer(env, op, t, known, prev)
	t.Root, _ = ix.object(data, ps, ParentRef{}, "", "")
	return t
}

type indexer struct {
	env     *Env
	op      *descriptor.Operation
	tree    *IndexedTree
	known   *MissingFields
	recycle []*IndexedTree
}

func newIndexer(env *Env, op *descriptor.Operation, t *IndexedTree, known *MissingFields, prev *IndexedTree) *indexer {
	ix := &indexer{env: env, op: op, tree: t, known: known}
	if prev != nil {
		ix.recycle = append(ix.recycle, prev)
		if prev.Prev != nil {
			ix.recycle = append(ix.recycle, prev.Prev)
		}
	}
	return ix
}

// object indexes a raw object and reports whether anything at or below it
// is incomplete.
func (ix *indexer) object(data map[string]any, ps *descriptor.PossibleSelections, parent ParentRef, fallbackKey, fallbackType string) (*values.ObjectChunk, bool) {
	if c, ok := ix.recycled(data, ps).(*values.ObjectChunk); ok {
		return c, ix.adopt(c, parent)
	}

	typeName := typeNameOf(data)
	if typeName == "" {
		typeName = fallbackType
	}
	key := ix.env.key(data, typeName, ps.ForType(typeName))
	if key == "" {
		key = fallbackKey
	}

	c := values.NewObjectChunk(data, ps, ix.op, key, typeName)
	ix.tree.register(c, parent)

	var partial bool
	for _, f := range c.Selection().Fields() {
		if !f.IsComposite() || c.IsSkipped(f) {
			continue
		}
		raw, ok := data[f.DataKey()]
		if !ok {
			c.MarkMissing(f)
			continue
		}
		if raw == nil {
			continue
		}
		v, p := ix.value(raw, f.Selection, ParentRef{Parent: c, Field: f})
		c.SetFieldValue(f.DataKey(), v)
		if p {
			c.MarkPartial(f.DataKey())
			partial = true
		}
	}
	for _, f := range ix.known.Get(data) {
		c.MarkMissing(f)
	}
	if c.IsIncomplete() {
		ix.tree.IncompleteChunks = append(ix.tree.IncompleteChunks, c)
		partial = true
	}
	return c, partial
}

func (ix *indexer) list(data []any, ps *descriptor.PossibleSelections, parent ParentRef) (*values.CompositeListChunk, bool) {
	if c, ok := ix.recycled(data, ps).(*values.CompositeListChunk); ok {
		return c, ix.adopt(c, parent)
	}

	c := values.NewCompositeListChunk(data, ps, ix.op)
	ix.tree.register(c, parent)

	var partial bool
	for i, item := range data {
		if item == nil {
			continue
		}
		v, p := ix.value(item, ps, ParentRef{Parent: c, Index: i})
		c.SetItem(i, v)
		partial = partial || p
	}
	return c, partial
}

func (ix *indexer) value(raw any, ps *descriptor.PossibleSelections, parent ParentRef) (values.Value, bool) {
	switch raw := raw.(type) {
	case map[string]any:
		c, partial := ix.object(raw, ps, parent, "", "")
		return c, partial
	case []any:
		c, partial := ix.list(raw, ps, parent)
		return c, partial
	default:
		values.Assert(false, "%v: composite value at %v is %T", ix.op, describeRef(parent), raw)
		return nil, false
	}
}

// recycled finds a chunk of a previous tree built from the same raw value.
// Returns nil whenever reuse is not provably safe.
func (ix *indexer) recycled(raw any, ps *descriptor.PossibleSelections) values.Chunk {
	if len(ix.recycle) == 0 {
		return nil
	}
	id, ok := sourceOf(raw)
	if !ok {
		return nil
	}
	if m, ok := raw.(map[string]any); ok && len(ix.known.Get(m)) > 0 {
		return nil
	}
	for _, t := range ix.recycle {
		c, ok := t.sources[id]
		if !ok {
			continue
		}
		if c.PossibleSelections() != ps || c.Operation().Key() != ix.op.Key() || ix.tree.contains(c) {
			continue
		}
		return c
	}
	return nil
}

// adopt registers a reused chunk and everything below it in the new tree.
func (ix *indexer) adopt(c values.Chunk, parent ParentRef) bool {
	if ix.tree.contains(c) {
		oc, ok := c.(*values.ObjectChunk)
		return ok && (oc.IsIncomplete() || oc.HasPartialFields())
	}
	ix.tree.register(c, parent)

	var partial bool
	switch c := c.(type) {
	case *values.ObjectChunk:
		for _, f := range c.Selection().Fields() {
			if !f.IsComposite() || c.IsSkipped(f) || c.Data()[f.DataKey()] == nil {
				continue
			}
			if child, ok := c.FieldValue(f).(values.Chunk); ok && ix.adopt(child, ParentRef{Parent: c, Field: f}) {
				partial = true
			}
		}
		if c.IsIncomplete() {
			ix.tree.IncompleteChunks = append(ix.tree.IncompleteChunks, c)
			partial = true
		}
	case *values.CompositeListChunk:
		for i, item := range c.Data() {
			if item == nil {
				continue
			}
			if child, ok := c.Item(i).(values.Chunk); ok && ix.adopt(child, ParentRef{Parent: c, Index: i}) {
				partial = true
			}
		}
	default:
		values.Unreachable(c)
	}
	return partial
}

func describeRef(ref ParentRef) string {
	switch {
	case ref.IsRoot():
		return "root"
	case ref.Field != nil:
		if oc, ok := ref.Parent.(*values.ObjectChunk); ok {
			return oc.Describe() + "." + ref.Field.DataKey()
		}
		return ref.Field.DataKey()
	default:
		return "item"
	}
}
