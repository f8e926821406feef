package diff

import (
	"slices"

	"github.com/andreyvit/gqlcache/values"
)

// DiffList diffs two versions of a composite list, including layout.
func DiffList(base, model values.ListValue, env *Env) (*CompositeListDifference, []*Error) {
	var errs []*Error
	d := &differ{env: env, errs: &errs}
	return d.diffList(base, model, nil), errs
}

func (d *differ) diffList(base, model values.ListValue, st *CompositeListDifference) *CompositeListDifference {
	if st == nil {
		st = newCompositeListDifference()
		st.baseLen, st.model = base.Len(), model
		st.layout, st.deletedKeys = d.layout(base, model)

		// item content is diffed against pre-layout indexes; the layout is
		// applied after item differences
		if st.layout == nil {
			bl, ml := base.Len(), model.Len()
			for i := range min(bl, ml) {
				st.enqueue(i, model.Item(i))
			}
			for j := bl; j < ml; j++ {
				st.resolve(j, &Filler{NewValue: model.Item(j)})
			}
		} else {
			for j, e := range st.layout {
				if e.IsIndex() {
					st.enqueue(e.Index, model.Item(j))
				}
			}
		}
	}

	remaining := st.queue[:0]
	for _, i := range st.queue {
		if i >= base.Len() {
			remaining = append(remaining, i)
			continue
		}
		fd, complete := d.diffValue(base.Item(i), st.pending[i], st.itemState[i])
		if complete {
			st.resolve(i, fd)
			continue
		}
		if fd != nil {
			st.itemState[i] = fd
			if fd.IsDirty() {
				st.dirtyItems[i] = struct{}{}
			}
		}
		remaining = append(remaining, i)
	}
	st.queue = remaining
	return st
}

// layout reconciles keyed items. It returns nil when every position keeps
// its item and the list did not shrink; growth is expressed by item fillers.
func (d *differ) layout(base, model values.ListValue) ([]LayoutEntry, []string) {
	bl, ml := base.Len(), model.Len()
	n := min(bl, ml)

	i := 0
	for ; i < n; i++ {
		if !d.sameItemKey(base.Item(i), model.Item(i), i) {
			break
		}
	}
	if i == n {
		if bl <= ml {
			return nil, nil
		}
		layout := make([]LayoutEntry, ml)
		for j := range ml {
			layout[j] = Keep(j)
		}
		consumed := make([]bool, bl)
		for j := range ml {
			consumed[j] = true
		}
		return layout, d.deletedKeys(base, consumed)
	}

	layout := make([]LayoutEntry, 0, ml)
	consumed := make([]bool, bl)
	for j := range i {
		layout = append(layout, Keep(j))
		consumed[j] = true
	}
	positions := make(map[string][]int)
	for b := i; b < bl; b++ {
		if k, ok := d.itemKey(base.Item(b), b); ok {
			positions[k] = append(positions[k], b)
		}
	}

	for j := i; j < ml; j++ {
		item := model.Item(j)
		if values.IsNullValue(item) {
			layout = append(layout, Null())
			continue
		}
		if k, ok := d.itemKey(item, j); ok {
			// repeated identities consume matches in order
			if pos := positions[k]; len(pos) > 0 {
				positions[k] = pos[1:]
				consumed[pos[0]] = true
				layout = append(layout, Keep(pos[0]))
			} else {
				layout = append(layout, New(item))
			}
			continue
		}
		if j < bl && !consumed[j] {
			bi := base.Item(j)
			if _, keyed := d.itemKey(bi, j); !keyed && !values.IsNullValue(bi) {
				consumed[j] = true
				layout = append(layout, Keep(j))
				continue
			}
		}
		layout = append(layout, New(item))
	}

	deleted := d.deletedKeys(base, consumed)
	if len(layout) == bl && isIdentity(layout) {
		return nil, deleted
	}
	return layout, deleted
}

func (d *differ) deletedKeys(base values.ListValue, consumed []bool) []string {
	var keys []string
	for b, used := range consumed {
		if used {
			continue
		}
		if k, ok := d.itemKey(base.Item(b), b); ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (d *differ) sameItemKey(b, m values.Value, i int) bool {
	bn, mn := values.IsNullValue(b), values.IsNullValue(m)
	if bn || mn {
		return bn && mn
	}
	bk, bok := d.itemKey(b, i)
	mk, mok := d.itemKey(m, i)
	if bok || mok {
		return bok && mok && bk == mk
	}
	return true
}

func (d *differ) itemKey(v values.Value, i int) (string, bool) {
	ov, ok := v.(values.ObjectValue)
	if !ok {
		return "", false
	}
	if k := ov.Key(); k != "" {
		return k, true
	}
	if d.env != nil && d.env.ListItemKey != nil {
		return d.env.ListItemKey(ov, i)
	}
	return "", false
}

func isIdentity(layout []LayoutEntry) bool {
	for i, e := range layout {
		if e.Index != i {
			return false
		}
	}
	return true
}

// ApplyLayout replays a layout against a list of old items: old indexes are
// looked up, nulls become nil and new values are converted by newItem.
func ApplyLayout[T any](layout []LayoutEntry, old []T, null T, newItem func(v values.Value) T) []T {
	out := make([]T, len(layout))
	for i, e := range layout {
		switch {
		case e.IsIndex():
			out[i] = old[e.Index]
		case e.IsNull():
			out[i] = null
		default:
			out[i] = newItem(e.Value)
		}
	}
	return out
}
