package snapshot

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	. "github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
)

var (
	listDoc = NewDocument(Query, "List", Select(
		Field("items").WithArgs(map[string]any{"first": 2}).Select(
			Field("__typename"), Field("id"), Field("tags"),
			Field("owner").Select(Field("__typename"), Field("id")),
			Field("meta").Select(Field("size")),
		),
	), nil)
	itemFragment = NewFragment("ItemTags", "Item", Select(Field("__typename"), Field("id"), Field("tags")))
)

func TestEncodeDecode(t *testing.T) {
	snaps := []OperationSnapshot{
		{Document: "List", Variables: map[string]any{"n": 1}, Data: map[string]any{"items": []any{map[string]any{"id": "a", "ok": true}}}},
		{Document: "ItemTags", RootKey: "Item:a", Data: map[string]any{"id": "a", "tags": []any{"x", "y"}}},
	}
	for _, m := range []Method{MsgPack, JSON} {
		t.Run(m.String(), func(t *testing.T) {
			raw, err := Encode(snaps, m)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(raw), "GQLC") {
				t.Errorf("** missing magic: %x", raw[:8])
			}
			var decoded []OperationSnapshot
			if err := Decode(raw, &decoded); err != nil {
				t.Fatal(err)
			}
			// numbers come back as int64 or float64 depending on the method
			if diff := cmp.Diff(snaps, decoded, cmp.FilterValues(isNumberPair, cmp.Comparer(numbersEqual))); diff != "" {
				t.Errorf("** round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func isNumberPair(a, b any) bool {
	_, ok1 := toFloat(a)
	_, ok2 := toFloat(b)
	return ok1 && ok2
}

func numbersEqual(a, b any) bool {
	fa, _ := toFloat(a)
	fb, _ := toFloat(b)
	return fa == fb
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func TestDecode_Errors(t *testing.T) {
	good, err := Encode(map[string]any{"a": 1}, JSON)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{"empty", nil, "not enough data"},
		{"no version", []byte("GQLC"), "invalid uvarint"},
		{"bad magic", []byte("NOPE\x01\x00{}"), "not a snapshot"},
		{"bad version", []byte("GQLC\x09\x00{}"), "unsupported format version 9"},
		{"bad method", []byte("GQLC\x01\x07{}"), "unsupported encoding"},
		{"truncated", good[:len(good)-1], "failed to decode JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v map[string]any
			err := Decode(tt.data, &v)
			var de *DataError
			if !errors.As(err, &de) {
				t.Fatalf("** Decode = %v, wanted *DataError", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("** Decode = %q, wanted %q", err, tt.msg)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	env := &forest.Env{}
	f := forest.New()
	f.SetTree(forest.IndexTree(env, listDoc.Operation(nil), map[string]any{"items": []any{
		map[string]any{
			"__typename": "Item",
			"id":         "a",
			"tags":       []any{"x"},
			"owner":      map[string]any{"__typename": "User", "id": 1},
			"meta":       map[string]any{"size": 3},
		},
		nil,
	}}, nil, nil))
	f.SetTree(forest.IndexTree(env, itemFragment.OperationAt("Item:b", nil), map[string]any{
		"__typename": "Item",
		"id":         "b",
		"tags":       []any{},
	}, nil, nil))

	recs := Extract(forest.View{f})
	want := Records{
		"ROOT_QUERY": {
			"__typename":          "Query",
			`items({"first":2})`: []any{Ref("Item:a"), nil},
		},
		"Item:a": {
			"__typename": "Item",
			"id":         "a",
			"tags":       []any{"x"},
			"owner":      Ref("User:1"),
			"meta":       map[string]any{"size": 3},
		},
		"Item:b": {
			"__typename": "Item",
			"id":         "b",
			"tags":       []any{},
		},
		"User:1": {
			"__typename": "User",
			"id":         1,
		},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("** records mismatch (-want +got):\n%s", diff)
	}

	if key, ok := RefOf(recs["Item:a"]["owner"]); !ok || key != "User:1" {
		t.Errorf("** RefOf(owner) = %q, %v", key, ok)
	}
	if _, ok := RefOf(recs["Item:a"]["meta"]); ok {
		t.Errorf("** RefOf(meta) reports a reference")
	}
}

func TestExtractAndRestoreOperations(t *testing.T) {
	env := &forest.Env{}
	f := forest.New()
	listOp := listDoc.Operation(map[string]any{"n": 1})
	fragOp := itemFragment.OperationAt("Item:b", nil)
	f.SetTree(forest.IndexTree(env, listOp, map[string]any{"items": []any{}}, nil, nil))
	f.SetTree(forest.IndexTree(env, fragOp, map[string]any{"__typename": "Item", "id": "b", "tags": []any{}}, nil, nil))

	snaps := ExtractOperations(f, nil)
	if len(snaps) != 2 {
		t.Fatalf("** got %d snapshots, wanted 2", len(snaps))
	}
	only := ExtractOperations(f, func(op *Operation) bool { return op.IsFragment() })
	if len(only) != 1 || only[0].Document != "List" || only[0].RootKey != "" {
		t.Errorf("** ExtractOperations with skip = %v", only)
	}

	docs := map[string]*Document{"List": listDoc, "ItemTags": itemFragment}
	restored, err := RestoreOperations(snaps, func(name string) *Document { return docs[name] })
	if err != nil {
		t.Fatal(err)
	}
	keys := map[string]bool{}
	for _, r := range restored {
		keys[r.Operation.Key()] = true
	}
	if diff := cmp.Diff(map[string]bool{listOp.Key(): true, fragOp.Key(): true}, keys); diff != "" {
		t.Errorf("** restored operations mismatch (-want +got):\n%s", diff)
	}
}
