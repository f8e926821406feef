package descriptor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOperationKey(t *testing.T) {
	doc := NewDocument(Query, "Items", Select(
		Field("items").WithArgs(map[string]any{"first": Variable("n")}).Select(Field("id")),
	), map[string]any{"n": 10})

	a := doc.Operation(nil)
	b := doc.Operation(map[string]any{"n": 10})
	c := doc.Operation(map[string]any{"n": 20})
	if a.Key() != b.Key() {
		t.Errorf("** defaults not applied: %s != %s", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("** different variables share key %s", a.Key())
	}
	if a.VariablesKey() != `{"n":10}` {
		t.Errorf("** VariablesKey = %s", a.VariablesKey())
	}
	if a.RootKey() != "ROOT_QUERY" || a.RootType() != "Query" || a.IsFragment() {
		t.Errorf("** root = %s/%s, fragment = %v", a.RootKey(), a.RootType(), a.IsFragment())
	}

	other := NewDocument(Query, "Items", doc.Selections(), nil)
	if other.Operation(map[string]any{"n": 10}).Key() == a.Key() {
		t.Errorf("** documents with the same name share operation keys")
	}

	// map order does not matter
	x := doc.Operation(map[string]any{"n": 1, "a": "x", "z": true})
	y := doc.Operation(map[string]any{"z": true, "n": 1, "a": "x"})
	if x.Key() != y.Key() {
		t.Errorf("** %s != %s", x.Key(), y.Key())
	}
}

func TestFragmentOperations(t *testing.T) {
	frag := NewFragment("UserName", "User", Select(Field("name")))
	if frag.Kind() != Fragment || frag.RootType() != "User" {
		t.Fatalf("** fragment = %v on %s", frag, frag.RootType())
	}
	op1 := frag.OperationAt("User:1", nil)
	op2 := frag.OperationAt("User:2", nil)
	if op1.Key() == op2.Key() {
		t.Errorf("** fragment operations on different entities share a key")
	}
	if !op1.IsFragment() || op1.RootKey() != "User:1" {
		t.Errorf("** op1 = %v (fragment=%v)", op1.RootKey(), op1.IsFragment())
	}

	defer func() {
		if recover() == nil {
			t.Errorf("** Operation() on a fragment did not panic")
		}
	}()
	frag.Operation(nil)
}

func TestFieldKey(t *testing.T) {
	doc := NewDocument(Query, "Q", Select(
		Field("user").WithArgs(map[string]any{"id": Variable("id"), "full": true}).Select(Field("id")),
		Field("user").As("other").WithArgs(map[string]any{"full": true, "id": 2}).Select(Field("id")),
		Field("version"),
	), nil)
	op := doc.Operation(map[string]any{"id": 2})
	sel := doc.Selections().Common()

	user, other := sel.FieldByDataKey("user"), sel.FieldByDataKey("other")
	if k := op.FieldKey(user); k != `user({"full":true,"id":2})` {
		t.Errorf("** FieldKey(user) = %s", k)
	}
	if op.FieldKey(user) != op.FieldKey(other) {
		t.Errorf("** aliases of the same value have different keys: %s != %s", op.FieldKey(user), op.FieldKey(other))
	}
	if k := op.FieldKey(sel.FieldByDataKey("version")); k != "version" {
		t.Errorf("** FieldKey(version) = %s", k)
	}
	if diff := cmp.Diff([]string{"user", "version"}, op.RootFieldNames()); diff != "" {
		t.Errorf("** RootFieldNames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"full": true, "id": 2}, op.ResolvedArgs(user)); diff != "" {
		t.Errorf("** ResolvedArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestIsIncluded(t *testing.T) {
	skipped := Field("a").SkipIf(Variable("s"))
	included := Field("b").IncludeIf(Variable("i"))
	never := Field("c").IncludeIf(false)
	doc := NewDocument(Query, "Q", Select(skipped, included, never, Field("d")), nil)

	tests := []struct {
		vars map[string]any
		f    *FieldInfo
		want bool
	}{
		{map[string]any{"s": true}, skipped, false},
		{map[string]any{"s": false}, skipped, true},
		{nil, skipped, true},
		{map[string]any{"i": true}, included, true},
		{nil, included, false},
		{nil, never, false},
	}
	for _, tt := range tests {
		if a := doc.Operation(tt.vars).IsIncluded(tt.f); a != tt.want {
			t.Errorf("** IsIncluded(%s) with %v = %v, wanted %v", tt.f, tt.vars, a, tt.want)
		}
	}
	if Field("x").IsConditional() {
		t.Errorf("** plain field is conditional")
	}
}

func fieldNames(sel *Selection) []string {
	var names []string
	for _, f := range sel.Fields() {
		names = append(names, f.DataKey())
	}
	return names
}

func TestSelectMergesFields(t *testing.T) {
	ps := Select(
		Field("id"),
		Field("owner").Select(Field("id")),
		Field("owner").Select(Field("name")),
		Field("id"),
	)
	sel := ps.Common()
	if diff := cmp.Diff([]string{"id", "owner"}, fieldNames(sel)); diff != "" {
		t.Fatalf("** fields mismatch (-want +got):\n%s", diff)
	}
	owner := sel.FieldByDataKey("owner")
	if diff := cmp.Diff([]string{"id", "name"}, fieldNames(owner.Selection.Common())); diff != "" {
		t.Errorf("** merged sub-selection mismatch (-want +got):\n%s", diff)
	}
	if !sel.HasField("owner") || len(sel.FieldsNamed("owner")) != 1 {
		t.Errorf("** FieldsNamed(owner) = %v", sel.FieldsNamed("owner"))
	}
}

func TestSelectTypeConditions(t *testing.T) {
	ps := Select(
		Field("__typename"),
		Field("id"),
		On("User", Field("name")),
		On("Org", Field("title"), On("Team", Field("size"))),
	)
	tests := []struct {
		typeName string
		want     []string
	}{
		{"User", []string{"__typename", "id", "name"}},
		{"Org", []string{"__typename", "id", "title"}},
		{"Team", []string{"__typename", "id", "size"}},
		{"Other", []string{"__typename", "id"}},
		{"", []string{"__typename", "id"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, fieldNames(ps.ForType(tt.typeName))); diff != "" {
			t.Errorf("** ForType(%q) mismatch (-want +got):\n%s", tt.typeName, diff)
		}
	}
	if diff := cmp.Diff([]string{"Org", "Team", "User"}, ps.TypeNames()); diff != "" {
		t.Errorf("** TypeNames mismatch (-want +got):\n%s", diff)
	}
}

func TestKindStrings(t *testing.T) {
	for k, want := range map[OperationKind]string{Query: "query", Mutation: "mutation", Subscription: "subscription", Fragment: "fragment"} {
		if a := k.String(); a != want {
			t.Errorf("** %d.String() = %q, wanted %q", k, a, want)
		}
	}
	if Mutation.RootKey() != "ROOT_MUTATION" || Subscription.RootType() != "Subscription" {
		t.Errorf("** unexpected roots")
	}
}
