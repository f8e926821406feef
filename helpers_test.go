package gqlcache_test

import (
	"reflect"
	"testing"

	. "github.com/andreyvit/gqlcache/descriptor"
)

var (
	fooDoc    = NewDocument(Query, "Foo", Select(Field("foo")), nil)
	userDoc   = NewDocument(Query, "User", Select(Field("user").WithArgs(map[string]any{"id": Variable("id")}).Select(userItems()...)), nil)
	viewerDoc = NewDocument(Query, "Viewer", Select(Field("viewer").Select(userItems()...)), nil)

	friendsDoc = NewDocument(Query, "Friends", Select(
		Field("viewer").Select(
			Field("__typename"),
			Field("id"),
			Field("friends").Select(userItems()...),
		),
	), nil)

	userFragment = NewFragment("UserName", "User", Select(userItems()...))
)

func userItems() []Item {
	return []Item{Field("__typename"), Field("id"), Field("name")}
}

func userOp(id int) *Operation {
	return userDoc.Operation(map[string]any{"id": id})
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Errorf("** got nil %T, wanted non-nil", a)
	}
}

func same(a, b any) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func obj(v any, path ...any) any {
	for _, p := range path {
		switch p := p.(type) {
		case string:
			v = v.(map[string]any)[p]
		case int:
			v = v.([]any)[p]
		}
	}
	return v
}
