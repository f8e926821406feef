package diff_test

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	. "github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/diff"
	"github.com/andreyvit/gqlcache/forest"
	"github.com/andreyvit/gqlcache/values"
)

var (
	env = &forest.Env{}

	itemsDoc = NewDocument(Query, "Items", Select(
		Field("items").Select(Field("__typename"), Field("id"), Field("name")),
	), nil)

	userDoc    = NewFragment("User", "User", Select(Field("__typename"), Field("id"), Field("name"), Field("address").Select(Field("city"))))
	userIDDoc  = NewFragment("UserID", "User", Select(Field("__typename"), Field("id")))
	userOp     = userDoc.OperationAt("User:1", nil)
	userIDOp   = userIDDoc.OperationAt("User:1", nil)
	itemsField = itemsDoc.Selections().Common().FieldByDataKey("items")
)

func items(ids ...any) values.ListValue {
	var list []any
	for _, id := range ids {
		if id == nil {
			list = append(list, nil)
			continue
		}
		list = append(list, map[string]any{"__typename": "Item", "id": id, "name": "n"})
	}
	t := forest.IndexTree(env, itemsDoc.Operation(nil), map[string]any{"items": list}, nil, nil)
	return t.Root.FieldValue(itemsField).(values.ListValue)
}

func object(op *Operation, data map[string]any) values.ObjectValue {
	return forest.IndexTree(env, op, data, nil, nil).Root
}

func TestDiffList_Layout(t *testing.T) {
	tests := []struct {
		name    string
		base    []any
		model   []any
		layout  []diff.LayoutEntry
		deleted []string
		items   []int
	}{
		{"equal", []any{1, 2, 3}, []any{1, 2, 3}, nil, nil, []int{}},
		{"removed first", []any{1, 2, 3}, []any{2, 3}, []diff.LayoutEntry{diff.Keep(1), diff.Keep(2)}, []string{"Item:1"}, []int{}},
		{"truncated", []any{1, 2, 3}, []any{1, 2}, []diff.LayoutEntry{diff.Keep(0), diff.Keep(1)}, []string{"Item:3"}, []int{}},
		{"rotated", []any{1, 2, 3}, []any{3, 1, 2}, []diff.LayoutEntry{diff.Keep(2), diff.Keep(0), diff.Keep(1)}, nil, []int{}},
		{"appended", []any{1, 2}, []any{1, 2, 3}, nil, nil, []int{2}},
		{"nulled", []any{1, 2}, []any{1, nil}, []diff.LayoutEntry{diff.Keep(0), diff.Null()}, []string{"Item:2"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, errs := diff.DiffList(items(tt.base...), items(tt.model...), env.DiffEnv())
			if len(errs) > 0 {
				t.Fatalf("** errors: %v", errs)
			}
			if delta := cmp.Diff(tt.layout, d.Layout(), cmp.Comparer(sameEntry)); delta != "" {
				t.Errorf("** layout mismatch (-want +got):\n%s", delta)
			}
			if delta := cmp.Diff(tt.deleted, d.DeletedKeys()); delta != "" {
				t.Errorf("** deleted keys mismatch (-want +got):\n%s", delta)
			}
			if delta := cmp.Diff(tt.items, d.ItemIndexes()); delta != "" {
				t.Errorf("** item indexes mismatch (-want +got):\n%s", delta)
			}
			dirty := tt.layout != nil || len(tt.items) > 0
			if d.IsDirty() != dirty {
				t.Errorf("** IsDirty = %v, wanted %v", d.IsDirty(), dirty)
			}
			if d.BaseLen() != len(tt.base) {
				t.Errorf("** BaseLen = %d, wanted %d", d.BaseLen(), len(tt.base))
			}
		})
	}
}

func sameEntry(a, b diff.LayoutEntry) bool {
	return a.Index == b.Index && (a.Value == nil) == (b.Value == nil)
}

func TestDiffList_Appended(t *testing.T) {
	d, _ := diff.DiffList(items(1, 2), items(1, 2, 3), env.DiffEnv())
	f, ok := d.ItemDifference(2).(*diff.Filler)
	if !ok {
		t.Fatalf("** item 2 difference = %v, wanted a Filler", d.ItemDifference(2))
	}
	if key := f.NewValue.(values.ObjectValue).Key(); key != "Item:3" {
		t.Errorf("** filler key = %s", key)
	}
	if d.ItemDifference(0) != nil {
		t.Errorf("** unchanged item 0 has a difference")
	}
}

func TestDiffList_LayoutIdempotent(t *testing.T) {
	d, _ := diff.DiffList(items(1, 2, 3, 4), items(4, 2, 5), env.DiffEnv())
	old := []string{"1", "2", "3", "4"}
	next := diff.ApplyLayout(d.Layout(), old, "null", func(v values.Value) string {
		return "new"
	})
	if delta := cmp.Diff([]string{"4", "2", "new"}, next); delta != "" {
		t.Errorf("** applied layout mismatch (-want +got):\n%s", delta)
	}
	if delta := cmp.Diff([]string{"Item:1", "Item:3"}, d.DeletedKeys()); delta != "" {
		t.Errorf("** deleted keys mismatch (-want +got):\n%s", delta)
	}

	again, _ := diff.DiffList(items(4, 2, 5), items(4, 2, 5), env.DiffEnv())
	if again.IsDirty() {
		t.Errorf("** diff of equal lists is dirty: %v", again.Layout())
	}
}

func TestDiffObject_Replacement(t *testing.T) {
	base := object(userOp, map[string]any{"__typename": "User", "id": 1, "name": "A", "address": map[string]any{"city": "X"}})
	model := object(userOp, map[string]any{"__typename": "User", "id": 1, "name": "B", "address": map[string]any{"city": "Y"}})

	d := diff.DiffObject(base, model, env.DiffEnv(), nil)
	if !d.IsDirty() || !d.IsComplete() {
		t.Fatalf("** dirty = %v, complete = %v", d.IsDirty(), d.IsComplete())
	}
	if delta := cmp.Diff([]string{"address", "name"}, d.DirtyFields()); delta != "" {
		t.Errorf("** dirty fields mismatch (-want +got):\n%s", delta)
	}
	r, ok := d.FieldDifference("name").(*diff.Replacement)
	if !ok || values.LeafRaw(r.NewValue) != "B" || values.LeafRaw(r.OldValue) != "A" {
		t.Errorf("** name difference = %#v", d.FieldDifference("name"))
	}
	addr, ok := d.FieldDifference("address").(*diff.ObjectDifference)
	if !ok {
		t.Fatalf("** address difference = %#v", d.FieldDifference("address"))
	}
	if delta := cmp.Diff([]string{"city"}, addr.DirtyFields()); delta != "" {
		t.Errorf("** address dirty fields mismatch (-want +got):\n%s", delta)
	}
	if d.FieldDifference("id") != nil {
		t.Errorf("** unchanged id has a difference")
	}
	if len(d.Errors()) > 0 {
		t.Errorf("** errors: %v", d.Errors())
	}

	same := diff.DiffObject(base, base, env.DiffEnv(), nil)
	if same.IsDirty() {
		t.Errorf("** object differs from itself: %v", same.DirtyFields())
	}
}

func TestDiffObject_Pending(t *testing.T) {
	// the base chunk does not select name at all
	base := object(userIDOp, map[string]any{"__typename": "User", "id": 1})
	model := object(userOp, map[string]any{"__typename": "User", "id": 1, "name": "B", "address": nil})

	d := diff.DiffObject(base, model, env.DiffEnv(), nil)
	if d.IsDirty() || d.IsComplete() {
		t.Errorf("** dirty = %v, complete = %v", d.IsDirty(), d.IsComplete())
	}
	if delta := cmp.Diff([]string{"address", "name"}, sorted(d.PendingFields())); delta != "" {
		t.Errorf("** pending fields mismatch (-want +got):\n%s", delta)
	}
	if len(d.Errors()) > 0 {
		t.Errorf("** errors: %v", d.Errors())
	}

	// resuming with a chunk that has the fields completes the diff
	full := object(userOp, map[string]any{"__typename": "User", "id": 1, "name": "B", "address": map[string]any{"city": "X"}})
	d = diff.DiffObject(full, model, env.DiffEnv(), d)
	if !d.IsComplete() {
		t.Fatalf("** still pending: %v", d.PendingFields())
	}
	if delta := cmp.Diff([]string{"address"}, d.DirtyFields()); delta != "" {
		t.Errorf("** dirty fields mismatch (-want +got):\n%s", delta)
	}
}

func TestDiffObject_Errors(t *testing.T) {
	incomplete := object(userOp, map[string]any{"__typename": "User", "id": 1, "address": nil})
	full := object(userOp, map[string]any{"__typename": "User", "id": 1, "name": "A", "address": nil})

	d := diff.DiffObject(incomplete, full, env.DiffEnv(), nil)
	if _, ok := d.FieldDifference("name").(*diff.Filler); !ok {
		t.Errorf("** name difference = %#v, wanted a Filler", d.FieldDifference("name"))
	}
	if delta := cmp.Diff([]diff.ErrorKind{diff.MissingBaseFields}, errorKinds(d.Errors())); delta != "" {
		t.Errorf("** error kinds mismatch (-want +got):\n%s", delta)
	}

	d = diff.DiffObject(full, incomplete, env.DiffEnv(), nil)
	if d.IsDirty() {
		t.Errorf("** missing model field made the diff dirty: %v", d.DirtyFields())
	}
	errs := d.Errors()
	if delta := cmp.Diff([]diff.ErrorKind{diff.MissingModelFields}, errorKinds(errs)); delta != "" {
		t.Fatalf("** error kinds mismatch (-want +got):\n%s", delta)
	}
	if s := errs[0].Error(); s != "MissingModelFields at User:1: name" {
		t.Errorf("** error = %q", s)
	}
}

func TestDiffValue(t *testing.T) {
	fd, errs := diff.DiffValue(values.NewLeafValue(1), values.NewLeafValue(1.0), nil)
	if fd != nil || len(errs) > 0 {
		t.Errorf("** DiffValue(1, 1.0) = %v, %v", fd, errs)
	}
	fd, _ = diff.DiffValue(values.NewLeafValue("a"), values.NewLeafValue("b"), nil)
	if fd == nil || fd.DifferenceKind() != diff.KindReplacement {
		t.Errorf("** DiffValue(a, b) = %v", fd)
	}
	fd, _ = diff.DiffValue(values.NewLeafUndefined(nil), values.NewLeafValue("b"), nil)
	if fd == nil || fd.DifferenceKind() != diff.KindFiller {
		t.Errorf("** DiffValue(undefined, b) = %v", fd)
	}
	fd, _ = diff.DiffValue(values.NewCompositeNull(nil), values.NewCompositeNull(nil), nil)
	if fd != nil {
		t.Errorf("** DiffValue(null, null) = %v", fd)
	}
}

func errorKinds(errs []*diff.Error) []diff.ErrorKind {
	var kinds []diff.ErrorKind
	for _, e := range errs {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func sorted(s []string) []string {
	slices.Sort(s)
	return s
}

var (
	edgesDoc   = NewDocument(Query, "Edges", Select(Field("edges").Select(Field("__typename"), Field("cursor"))), nil)
	edgesField = edgesDoc.Selections().Common().FieldByDataKey("edges")
)

func edges(cursors ...string) values.ListValue {
	var list []any
	for _, c := range cursors {
		list = append(list, map[string]any{"__typename": "Edge", "cursor": c})
	}
	t := forest.IndexTree(env, edgesDoc.Operation(nil), map[string]any{"edges": list}, nil, nil)
	return t.Root.FieldValue(edgesField).(values.ListValue)
}

func cursorKey(item values.ObjectValue, index int) (string, bool) {
	c, ok := item.Chunks()[0].Data()["cursor"].(string)
	return "Edge:" + c, ok
}

func TestDiffList_ListItemKey(t *testing.T) {
	d, errs := diff.DiffList(edges("a", "b", "c"), edges("c", "a"), &diff.Env{ListItemKey: cursorKey})
	if len(errs) > 0 {
		t.Fatalf("** errors: %v", errs)
	}
	if delta := cmp.Diff([]diff.LayoutEntry{diff.Keep(2), diff.Keep(0)}, d.Layout(), cmp.Comparer(sameEntry)); delta != "" {
		t.Errorf("** layout mismatch (-want +got):\n%s", delta)
	}
	if delta := cmp.Diff([]string{"Edge:b"}, d.DeletedKeys()); delta != "" {
		t.Errorf("** deleted keys mismatch (-want +got):\n%s", delta)
	}
	if delta := cmp.Diff([]int{}, d.ItemIndexes()); delta != "" {
		t.Errorf("** item indexes mismatch (-want +got):\n%s", delta)
	}

	// unkeyed edges are matched by position
	d, _ = diff.DiffList(edges("a", "b", "c"), edges("c", "a"), &diff.Env{})
	if delta := cmp.Diff([]diff.LayoutEntry{diff.Keep(0), diff.Keep(1)}, d.Layout(), cmp.Comparer(sameEntry)); delta != "" {
		t.Errorf("** positional layout mismatch (-want +got):\n%s", delta)
	}
	if len(d.DeletedKeys()) != 0 {
		t.Errorf("** positional deleted keys = %v, wanted none", d.DeletedKeys())
	}
	if delta := cmp.Diff([]int{0, 1}, d.ItemIndexes()); delta != "" {
		t.Errorf("** positional item indexes mismatch (-want +got):\n%s", delta)
	}
}
