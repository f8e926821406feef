// Package snapshot flattens cached data into portable records and
// serializes them.
package snapshot

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
	"github.com/andreyvit/gqlcache/values"
)

const (
	RefKey      = "__ref"
	TypenameKey = "__typename"
)

// Records maps node keys to flat records. Fields are stored under field
// keys; nested entities are stored as references, see Ref.
type Records map[string]map[string]any

func Ref(key string) map[string]any {
	return map[string]any{RefKey: key}
}

// RefOf returns the node key of a reference.
func RefOf(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	key, ok := m[RefKey].(string)
	return key, ok
}

// Extract flattens every node visible in the view. When chunks disagree on
// a field, the topmost layer wins.
func Extract(view forest.View) Records {
	keys := make(map[string]struct{})
	for _, f := range view {
		for k := range f.OperationsByNodes {
			keys[k] = struct{}{}
		}
	}
	out := make(Records, len(keys))
	for _, key := range slices.Sorted(maps.Keys(keys)) {
		chunks := view.NodeChunks(key)
		if len(chunks) == 0 {
			continue
		}
		out[key] = flattenObject(values.NewObjectAggregate(chunks...))
	}
	return out
}

func flattenObject(obj values.ObjectValue) map[string]any {
	rec := make(map[string]any)
	if tn := obj.TypeName(); tn != "" {
		rec[TypenameKey] = tn
	}
	for _, c := range obj.Chunks() {
		op := c.Operation()
		for _, f := range c.Selection().Fields() {
			if c.IsSkipped(f) {
				continue
			}
			fk := op.FieldKey(f)
			if _, done := rec[fk]; done {
				continue
			}
			if v, ok := values.ResolveField(obj, fk); ok {
				rec[fk] = flatten(v)
			}
		}
	}
	return rec
}

func flatten(v values.Value) any {
	switch v := v.(type) {
	case values.ObjectValue:
		if key := v.Key(); key != "" {
			return Ref(key)
		}
		return flattenObject(v)
	case values.ListValue:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = flatten(v.Item(i))
		}
		return out
	}
	if values.IsLeafValue(v) {
		return values.LeafRaw(v)
	}
	return nil
}

// OperationSnapshot is the result of one operation, restorable through the
// document it was written with.
type OperationSnapshot struct {
	Document  string         `msgpack:"document" json:"document"`
	RootKey   string         `msgpack:"root,omitempty" json:"root,omitempty"`
	Variables map[string]any `msgpack:"vars,omitempty" json:"vars,omitempty"`
	Data      map[string]any `msgpack:"data" json:"data"`
}

// ExtractOperations lists results of the forest's trees in operation key
// order. skip, when non-nil, excludes operations.
func ExtractOperations(f *forest.Forest, skip func(op *descriptor.Operation) bool) []OperationSnapshot {
	var out []OperationSnapshot
	for _, key := range f.OperationKeys() {
		t := f.Tree(key)
		op := t.Operation
		if skip != nil && skip(op) {
			continue
		}
		snap := OperationSnapshot{
			Document:  op.Name(),
			Variables: op.Variables(),
			Data:      t.Result,
		}
		if op.IsFragment() {
			snap.RootKey = op.RootKey()
		}
		out = append(out, snap)
	}
	return out
}

// Resolver finds a document by name, returning nil for unknown names.
type Resolver func(name string) *descriptor.Document

type Restored struct {
	Operation *descriptor.Operation
	Data      map[string]any
}

// RestoreOperations rebuilds operations of snapshots. Snapshots that cannot
// be restored are skipped and reported in the returned error.
func RestoreOperations(snaps []OperationSnapshot, resolve Resolver) ([]Restored, error) {
	var out []Restored
	var result *multierror.Error
	for i, snap := range snaps {
		doc := resolve(snap.Document)
		switch {
		case doc == nil:
			result = multierror.Append(result, fmt.Errorf("snapshot %d: unknown document %q", i, snap.Document))
			continue
		case snap.Data == nil:
			result = multierror.Append(result, fmt.Errorf("snapshot %d (%s): no data", i, snap.Document))
			continue
		case doc.Kind() == descriptor.Fragment && snap.RootKey == "":
			result = multierror.Append(result, fmt.Errorf("snapshot %d (%s): fragment without a root key", i, snap.Document))
			continue
		}
		var op *descriptor.Operation
		if snap.RootKey != "" {
			op = doc.OperationAt(snap.RootKey, snap.Variables)
		} else {
			op = doc.Operation(snap.Variables)
		}
		out = append(out, Restored{op, snap.Data})
	}
	return out, result.ErrorOrNil()
}
