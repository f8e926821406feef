package gqlcache_test

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/andreyvit/gqlcache"
	"github.com/andreyvit/gqlcache/cachetest"
	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/snapshot"
)

func resolveDoc(name string) *descriptor.Document {
	for _, doc := range []*descriptor.Document{fooDoc, userDoc, viewerDoc, friendsDoc, userFragment} {
		if doc.Name() == name {
			return doc
		}
	}
	return nil
}

func TestSnapshot_RoundTrip(t *testing.T) {
	for _, m := range []snapshot.Method{snapshot.MsgPack, snapshot.JSON} {
		t.Run(m.String(), func(t *testing.T) {
			src := cachetest.New(t, gqlcache.Options{})
			friends := friendsDoc.Operation(nil)
			src.Put(friends, `{"viewer": {"__typename": "User", "id": 1, "friends": [
				{"__typename": "User", "id": 2, "name": "B"},
				{"__typename": "User", "id": 3, "name": "C"}
			]}}`)
			src.Put(userOp(2), `{"user": {"__typename": "User", "id": 2, "name": "B"}}`)
			must0(src.WriteFragment(userFragment, "User:3", nil, cachetest.Data(`{"__typename": "User", "id": 3, "name": "C"}`)))

			raw := must(snapshot.Encode(src.ExtractOperations(), m))
			var snaps []snapshot.OperationSnapshot
			must0(snapshot.Decode(raw, &snaps))
			deepEqual(t, len(snaps), 3)

			dst := cachetest.New(t, gqlcache.Options{})
			must0(dst.RestoreOperations(snaps, resolveDoc))

			dst.Eq(friends, `{"viewer": {"__typename": "User", "id": 1, "friends": [
				{"__typename": "User", "id": 2, "name": "B"},
				{"__typename": "User", "id": 3, "name": "C"}
			]}}`)
			dst.Eq(userOp(2), `{"user": {"__typename": "User", "id": 2, "name": "B"}}`)
			dst.Eq(userFragment.OperationAt("User:3", nil), `{"__typename": "User", "id": 3, "name": "C"}`)
			deepEqual(t, opKeys(dst.Operations()...), opKeys(src.Operations()...))
			deepEqual(t, dst.Stats().Transactions, 1)
		})
	}
}

func TestSnapshot_RestoreSkipsUnknown(t *testing.T) {
	c := cachetest.New(t, gqlcache.Options{})
	snaps := []snapshot.OperationSnapshot{
		{Document: "Nope", Data: map[string]any{}},
		{Document: "Foo", Data: map[string]any{"foo": 1}},
		{Document: "UserName", Data: map[string]any{"__typename": "User", "id": 1}},
	}
	err := c.RestoreOperations(snaps, resolveDoc)
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("RestoreOperations = %v, wanted *multierror.Error", err)
	}
	deepEqual(t, len(merr.Errors), 2)
	c.Eq(fooDoc.Operation(nil), `{"foo": 1}`)
}

func TestExtract(t *testing.T) {
	c := cachetest.New(t, gqlcache.Options{})
	c.Put(friendsDoc.Operation(nil), `{"viewer": {"__typename": "User", "id": 1, "friends": [
		{"__typename": "User", "id": 2, "name": "B"},
		{"__typename": "User", "id": 3, "name": "C"}
	]}}`)
	must0(c.Batch(gqlcache.BatchOptions{Optimistic: true}, func(tx *gqlcache.Tx) error {
		return tx.Modify("User:2", map[string]any{"name": "O"})
	}))

	recs := c.Extract(false)
	deepEqual(t, cachetest.JSON(recs["User:1"]), `{"__typename":"User","friends":[{"__ref":"User:2"},{"__ref":"User:3"}],"id":1}`)
	deepEqual(t, cachetest.JSON(recs["User:2"]), `{"__typename":"User","id":2,"name":"B"}`)
	deepEqual(t, cachetest.JSON(recs["ROOT_QUERY"]), `{"__typename":"Query","viewer":{"__ref":"User:1"}}`)

	recs = c.Extract(true)
	deepEqual(t, cachetest.JSON(recs["User:2"]), `{"__typename":"User","id":2,"name":"O"}`)
}
