package forest

import (
	"maps"
	"slices"
	"strings"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/diff"
	"github.com/andreyvit/gqlcache/values"
)

// ChunkProvider returns every known chunk of a node, best source first.
type ChunkProvider func(nodeKey string) []*values.ObjectChunk

type UpdateTreeResult struct {
	// UpdatedTree is the base tree itself when nothing changed.
	UpdatedTree *IndexedTree
	// ChangedNodes lists nodes whose chunks were modified, sorted.
	ChangedNodes []string
	// AffectedNodes lists nodes of the base tree that had a difference,
	// sorted.
	AffectedNodes []string
	MissingFields *MissingFields
}

func (r *UpdateTreeResult) IsChanged() bool {
	return len(r.ChangedNodes) > 0
}

type updateTarget struct {
	chunk *values.ObjectChunk
	depth int
	diff  *diff.ObjectDifference
}

// UpdateTree applies node differences to a tree and returns the updated
// tree. Only chunks on the paths from modified chunks to the root are
// copied; every other chunk and raw value is shared with base.
//
// Values the base tree cannot take from a difference as-is (a different
// selection, a different node) are materialized from the provider, which
// may be nil.
func UpdateTree(env *Env, base *IndexedTree, diffs map[string]*diff.ObjectDifference, provider ChunkProvider) *UpdateTreeResult {
	res := &UpdateTreeResult{UpdatedTree: base}

	var targets []updateTarget
	for key, d := range diffs {
		chunks := base.Nodes[key]
		if len(chunks) == 0 {
			continue
		}
		res.AffectedNodes = append(res.AffectedNodes, key)
		for _, c := range chunks {
			targets = append(targets, updateTarget{c, base.Depth(c), d})
		}
	}
	if len(targets) == 0 {
		return res
	}
	slices.Sort(res.AffectedNodes)

	// Deepest first: list layouts of outer chunks change positions that
	// nested updates still address by old coordinates.
	slices.SortStableFunc(targets, func(a, b updateTarget) int {
		if a.depth != b.depth {
			return b.depth - a.depth
		}
		return strings.Compare(a.chunk.Key(), b.chunk.Key())
	})

	u := newUpdater(env, base.Operation, provider)
	u.tree = base
	u.diffs = diffs

	changed := make(map[string]struct{})
	for _, t := range targets {
		if u.updateObject(t.chunk, t.diff) {
			changed[t.chunk.Key()] = struct{}{}
			u.copyUp(t.chunk)
		}
	}
	if len(u.drafts) == 0 {
		return res
	}

	result := u.raw(base.Root).(map[string]any)
	tree := IndexTree(env, base.Operation, result, u.missing, base)
	tree.Prev = nil

	res.UpdatedTree = tree
	res.ChangedNodes = slices.Sorted(maps.Keys(changed))
	res.MissingFields = u.missing
	return res
}

// Materialize builds a tree for an operation out of chunks the provider
// knows, starting at the operation's root entity. Returns nil when the
// provider knows nothing about the root. Fields no chunk provides are
// reported in the returned MissingFields.
func Materialize(env *Env, op *descriptor.Operation, provider ChunkProvider) (*IndexedTree, *MissingFields) {
	roots := provider(op.RootKey())
	if len(roots) == 0 {
		return nil, nil
	}
	u := newUpdater(env, op, provider)
	data := u.materializeObject(values.NewObjectAggregate(roots...), op.Selections())
	return IndexTree(env, op, data, u.missing, nil), u.missing
}

type updater struct {
	env      *Env
	op       *descriptor.Operation
	provider ChunkProvider
	tree     *IndexedTree
	diffs    map[string]*diff.ObjectDifference
	drafts   map[values.Chunk]any
	missing  *MissingFields
}

func newUpdater(env *Env, op *descriptor.Operation, provider ChunkProvider) *updater {
	return &updater{
		env:      env,
		op:       op,
		provider: provider,
		drafts:   make(map[values.Chunk]any),
		missing:  &MissingFields{},
	}
}

func (u *updater) raw(c values.Chunk) any {
	if d, ok := u.drafts[c]; ok {
		return d
	}
	return c.Raw()
}

func (u *updater) objectDraft(c *values.ObjectChunk) map[string]any {
	if d, ok := u.drafts[c]; ok {
		return d.(map[string]any)
	}
	d := maps.Clone(c.Data())
	u.drafts[c] = d
	return d
}

func (u *updater) listDraft(c *values.CompositeListChunk) []any {
	if d, ok := u.drafts[c]; ok {
		return d.([]any)
	}
	d := slices.Clone(c.Data())
	u.drafts[c] = d
	return d
}

// copyUp copies every ancestor of c up to the root and points each copy at
// the current version of its child.
func (u *updater) copyUp(c values.Chunk) {
	for {
		ref, ok := u.tree.DataMap[c]
		if !ok || ref.IsRoot() {
			return
		}
		switch p := ref.Parent.(type) {
		case *values.ObjectChunk:
			u.objectDraft(p)[ref.Field.DataKey()] = u.raw(c)
		case *values.CompositeListChunk:
			u.listDraft(p)[ref.Index] = u.raw(c)
		default:
			values.Unreachable(p)
		}
		c = ref.Parent
	}
}

// updateObject applies d to the chunk's fields and reports whether the
// chunk's data changed. A draft is only made when a value differs.
func (u *updater) updateObject(c *values.ObjectChunk, d *diff.ObjectDifference) bool {
	var changed bool
	op := c.Operation()
	for _, f := range c.Selection().Fields() {
		if c.IsSkipped(f) {
			continue
		}
		fd := d.FieldDifference(op.FieldKey(f))
		if fd == nil {
			continue
		}
		cur, has := u.raw(c).(map[string]any)[f.DataKey()]
		var base values.Value
		if has {
			base = c.FieldValue(f)
		}
		newRaw, ok := u.updateValue(base, cur, has, fd, f.Selection, !f.IsComposite())
		if !ok {
			continue
		}
		u.objectDraft(c)[f.DataKey()] = newRaw
		changed = true
	}
	return changed
}

func (u *updater) updateValue(base values.Value, cur any, has bool, fd diff.ValueDifference, ps *descriptor.PossibleSelections, leaf bool) (any, bool) {
	switch fd := fd.(type) {
	case *diff.Replacement:
		return u.replaceValue(base, cur, has, fd.NewValue, ps, leaf)
	case *diff.Filler:
		return u.replaceValue(base, cur, has, fd.NewValue, ps, leaf)
	case *diff.ObjectDifference:
		child, ok := base.(*values.ObjectChunk)
		if !ok || !u.updateObject(child, fd) {
			return nil, false
		}
		return u.raw(child), true
	case *diff.CompositeListDifference:
		child, ok := base.(*values.CompositeListChunk)
		if !ok {
			return u.materialize(fd.Model(), ps), true
		}
		return u.updateList(child, fd, ps)
	default:
		values.Unreachable(fd)
		return nil, false
	}
}

func (u *updater) replaceValue(base values.Value, cur any, has bool, v values.Value, ps *descriptor.PossibleSelections, leaf bool) (any, bool) {
	if leaf {
		if has && values.IsLeafValue(base) && values.LeafEqual(base, v) {
			return nil, false
		}
		return values.LeafRaw(v), true
	}
	if has {
		if values.IsNullValue(v) && cur == nil {
			return nil, false
		}
		if ov, ok := v.(values.ObjectValue); ok && ov.Key() != "" {
			if bo, ok := base.(values.ObjectValue); ok && bo.Key() == ov.Key() {
				return nil, false
			}
		}
	}
	return u.materialize(v, ps), true
}

func (u *updater) updateList(lc *values.CompositeListChunk, d *diff.CompositeListDifference, ps *descriptor.PossibleSelections) (any, bool) {
	// computed against a list of another length: positions do not apply
	if lc.Len() != d.BaseLen() {
		return u.materialize(d.Model(), ps), true
	}

	var changed bool
	var appended []any
	for _, i := range d.ItemIndexes() {
		fd := d.ItemDifference(i)
		if i >= lc.Len() {
			f, ok := fd.(*diff.Filler)
			values.Assert(ok, "item %d past the end of a list of %d is %v", i, lc.Len(), fd.DifferenceKind())
			appended = append(appended, u.materialize(f.NewValue, ps))
			continue
		}
		newRaw, ok := u.updateValue(lc.Item(i), u.raw(lc).([]any)[i], true, fd, ps, false)
		if !ok {
			continue
		}
		u.listDraft(lc)[i] = newRaw
		changed = true
	}

	layout := d.Layout()
	if layout == nil {
		if len(appended) == 0 {
			if !changed {
				return nil, false
			}
			return u.raw(lc), true
		}
		items := append(slices.Clone(u.raw(lc).([]any)), appended...)
		u.drafts[lc] = items
		return items, true
	}

	items := diff.ApplyLayout(layout, u.raw(lc).([]any), nil, func(v values.Value) any {
		return u.materialize(v, ps)
	})
	u.drafts[lc] = items
	return items, true
}

// materialize converts a value into raw data shaped by ps.
func (u *updater) materialize(v values.Value, ps *descriptor.PossibleSelections) any {
	switch v := v.(type) {
	case values.ObjectValue:
		return u.materializeObject(v, ps)
	case values.ListValue:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = u.materialize(v.Item(i), ps)
		}
		return out
	}
	switch v.Kind() {
	case values.KindCompositeNull:
		return nil
	case values.KindScalar, values.KindComplexScalar, values.KindLeafList, values.KindLeafError:
		return values.LeafRaw(v)
	default:
		values.Unreachable(v)
		return nil
	}
}

// materializeObject reuses the raw data of a chunk built for exactly this
// selection when there is one, and otherwise hydrates a new object from
// every known chunk of the entity.
func (u *updater) materializeObject(ov values.ObjectValue, ps *descriptor.PossibleSelections) map[string]any {
	key := ov.Key()
	for _, c := range ov.Chunks() {
		if u.isExact(c, ps) {
			return c.Data()
		}
	}
	if key != "" && u.tree != nil {
		if _, pending := u.diffs[key]; !pending {
			for _, c := range u.tree.Nodes[key] {
				if u.isExact(c, ps) {
					return u.raw(c).(map[string]any)
				}
			}
		}
	}

	sources := slices.Clone(ov.Chunks())
	if key != "" && u.provider != nil {
		for _, c := range u.provider(key) {
			if !slices.Contains(sources, c) {
				sources = append(sources, c)
			}
		}
	}
	agg := values.NewObjectAggregate(sources...)
	sel := ps.ForType(agg.TypeName())

	out := make(map[string]any, sel.Len())
	for _, f := range sel.Fields() {
		if f.IsConditional() && !u.op.IsIncluded(f) {
			continue
		}
		v, ok := values.ResolveField(agg, u.op.FieldKey(f))
		if !ok {
			u.missing.Add(out, f)
			continue
		}
		if f.IsComposite() {
			out[f.DataKey()] = u.materialize(v, f.Selection)
		} else {
			out[f.DataKey()] = values.LeafRaw(v)
		}
	}
	return out
}

func (u *updater) isExact(c *values.ObjectChunk, ps *descriptor.PossibleSelections) bool {
	return c.PossibleSelections() == ps &&
		c.Operation().Key() == u.op.Key() &&
		!c.IsIncomplete() &&
		!c.HasPartialFields()
}
