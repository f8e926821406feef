package diff

import (
	"slices"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/values"
)

type differ struct {
	env     *Env
	nodeKey string
	errs    *[]*Error
}

// DiffObject diffs model against base field by field and accumulates the
// result in state (a new state when nil). When base aggregates several
// chunks, each is consulted in turn until every field is resolved. Passing
// the returned state back in resumes diffing of fields that were pending.
func DiffObject(base, model values.ObjectValue, env *Env, state *ObjectDifference) *ObjectDifference {
	if state == nil {
		state = NewObjectDifference()
	}
	d := &differ{env: env, nodeKey: model.Key(), errs: &state.errors}
	d.diffObject(base, model, state)
	return state
}

// DiffValue diffs two values of the same field. It returns nil when they
// are equal.
func DiffValue(base, model values.Value, env *Env) (ValueDifference, []*Error) {
	var errs []*Error
	d := &differ{env: env, errs: &errs}
	fd, _ := d.diffValue(base, model, nil)
	return fd, errs
}

func (d *differ) report(kind ErrorKind, fields []string) {
	*d.errs = append(*d.errs, &Error{Kind: kind, NodeKey: d.nodeKey, Fields: fields})
}

func (d *differ) diffObject(base, model values.ObjectValue, state *ObjectDifference) {
	d.enqueueModel(model, state)
	for _, bc := range base.Chunks() {
		if state.IsComplete() {
			break
		}
		d.diffChunkFields(bc, state)
	}

	if len(state.baseMiss) == 0 {
		return
	}
	var missing []string
	remaining := state.queue[:0]
	for _, key := range state.queue {
		if _, ok := state.baseMiss[key]; ok && state.fieldState[key] == nil {
			state.resolve(key, &Filler{NewValue: state.pending[key]})
			missing = append(missing, key)
		} else {
			remaining = append(remaining, key)
		}
	}
	state.queue = remaining
	if len(missing) > 0 {
		d.report(MissingBaseFields, missing)
	}
}

func (d *differ) enqueueModel(model values.ObjectValue, state *ObjectDifference) {
	var missing []string
	for _, mc := range model.Chunks() {
		op := mc.Operation()
		for _, f := range mc.Selection().Fields() {
			if mc.IsSkipped(f) {
				continue
			}
			key := op.FieldKey(f)
			if state.isResolved(key) {
				continue
			}
			if !mc.HasValue(f) {
				if !slices.Contains(missing, key) {
					missing = append(missing, key)
				}
				continue
			}
			v := mc.FieldValue(f)
			if prev, ok := state.pending[key]; ok {
				// the same entity reached twice in the model: read both
				if values.IsObjectValue(prev) || values.IsCompositeListValue(prev) {
					state.pending[key] = values.AggregateValues([]values.Value{prev, v})
				}
				continue
			}
			state.enqueue(key, v)
		}
	}
	missing = slices.DeleteFunc(missing, func(k string) bool {
		return state.isQueued(k) || state.isResolved(k)
	})
	if len(missing) > 0 {
		d.report(MissingModelFields, missing)
	}
}

func (d *differ) diffChunkFields(bc *values.ObjectChunk, state *ObjectDifference) {
	remaining := state.queue[:0]
	for _, key := range state.queue {
		fields := bc.FieldsByKey(key)
		var f *descriptor.FieldInfo
		for _, cand := range fields {
			if bc.HasValue(cand) {
				f = cand
				break
			}
		}
		if f == nil {
			if len(fields) > 0 {
				if state.baseMiss == nil {
					state.baseMiss = make(map[string]struct{})
				}
				state.baseMiss[key] = struct{}{}
			}
			remaining = append(remaining, key)
			continue
		}

		fd, complete := d.diffValue(bc.FieldValue(f), state.pending[key], state.fieldState[key])
		if complete {
			state.resolve(key, fd)
			continue
		}
		if fd != nil {
			state.fieldState[key] = fd
			if fd.IsDirty() {
				state.dirty[key] = struct{}{}
			}
		}
		remaining = append(remaining, key)
	}
	state.queue = remaining
}

// diffValue returns the difference (nil when equal) and whether it is
// complete. prev is a partial difference from an earlier base chunk.
func (d *differ) diffValue(base, model values.Value, prev ValueDifference) (ValueDifference, bool) {
	if values.IsMissingValue(model) {
		d.report(MissingModelValue, nil)
		return nil, false
	}
	if values.IsMissingValue(base) {
		return &Filler{NewValue: model}, true
	}

	switch model.Kind() {
	case values.KindScalar, values.KindComplexScalar, values.KindLeafList, values.KindLeafError:
		if values.IsLeafValue(base) && values.LeafEqual(base, model) {
			return nil, true
		}
		return &Replacement{OldValue: base, NewValue: model}, true

	case values.KindCompositeNull:
		if values.IsNullValue(base) {
			return nil, true
		}
		return &Replacement{OldValue: base, NewValue: model}, true

	case values.KindObject, values.KindObjectAggregate:
		b, ok := base.(values.ObjectValue)
		if !ok {
			return &Replacement{OldValue: base, NewValue: model}, true
		}
		m := model.(values.ObjectValue)
		if bt, mt := b.TypeName(), m.TypeName(); bt != "" && mt != "" && bt != mt {
			return &Replacement{OldValue: base, NewValue: model}, true
		}
		if b.Key() != "" || m.Key() != "" {
			// nested nodes are diffed where they are the diff root
			if b.Key() == m.Key() {
				return nil, true
			}
			return &Replacement{OldValue: base, NewValue: model}, true
		}
		st, _ := prev.(*ObjectDifference)
		if st == nil {
			st = NewObjectDifference()
		}
		d.diffObject(b, m, st)
		return settle(st, st.IsComplete())

	case values.KindCompositeList, values.KindCompositeListAggregate:
		b, ok := base.(values.ListValue)
		if !ok {
			return &Replacement{OldValue: base, NewValue: model}, true
		}
		st, _ := prev.(*CompositeListDifference)
		st = d.diffList(b, model.(values.ListValue), st)
		return settle(st, st.IsComplete())

	case values.KindCompositeUndefined, values.KindLeafUndefined:
		// handled by IsMissingValue above
		values.Unreachable(model)
		return nil, false

	default:
		values.Unreachable(model)
		return nil, false
	}
}

func settle(st ValueDifference, complete bool) (ValueDifference, bool) {
	if complete && !st.IsDirty() {
		return nil, true
	}
	return st, complete
}
