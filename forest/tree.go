package forest

import (
	"reflect"
	"slices"
	"unsafe"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/values"
)

// ParentRef links a chunk to its parent within one tree. Parent is nil for
// the root. Field is set for object parents, Index for list parents.
type ParentRef struct {
	Parent values.Chunk
	Field  *descriptor.FieldInfo
	Index  int
}

func (r ParentRef) IsRoot() bool {
	return r.Parent == nil
}

// IndexedTree is the indexed form of one operation's result.
//
// A chunk can belong to several trees, with a different parent in each, so
// parents live in DataMap rather than on chunks.
type IndexedTree struct {
	Operation *descriptor.Operation
	Result    map[string]any
	Root      *values.ObjectChunk

	// Nodes maps identity keys to the chunks with that key. Never holds an
	// empty slice.
	Nodes            map[string][]*values.ObjectChunk
	TypeMap          map[string][]*values.ObjectChunk
	DataMap          map[values.Chunk]ParentRef
	IncompleteChunks []*values.ObjectChunk

	// Prev is the tree this one was built from. Only set while indexing.
	Prev *IndexedTree

	Generation uint64

	sources map[sourceID]values.Chunk
}

func newTree(env *Env, op *descriptor.Operation, result map[string]any, prev *IndexedTree) *IndexedTree {
	return &IndexedTree{
		Operation:  op,
		Result:     result,
		Nodes:      make(map[string][]*values.ObjectChunk),
		TypeMap:    make(map[string][]*values.ObjectChunk),
		DataMap:    make(map[values.Chunk]ParentRef),
		Prev:       prev,
		Generation: env.nextGeneration(),
		sources:    make(map[sourceID]values.Chunk),
	}
}

// NodeKeys returns identity keys of every node in the tree, sorted.
func (t *IndexedTree) NodeKeys() []string {
	keys := make([]string, 0, len(t.Nodes))
	for k := range t.Nodes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (t *IndexedTree) HasNode(key string) bool {
	_, ok := t.Nodes[key]
	return ok
}

// IsComplete reports whether no composite field is missing. Missing leaf
// fields are only detected by FindMissingFields.
func (t *IndexedTree) IsComplete() bool {
	return len(t.IncompleteChunks) == 0
}

func (t *IndexedTree) Parent(c values.Chunk) (ParentRef, bool) {
	ref, ok := t.DataMap[c]
	return ref, ok
}

// Depth returns the number of ancestors of the chunk, or -1 when the chunk
// is not in the tree.
func (t *IndexedTree) Depth(c values.Chunk) int {
	depth := 0
	for {
		ref, ok := t.DataMap[c]
		if !ok {
			return -1
		}
		if ref.IsRoot() {
			return depth
		}
		c = ref.Parent
		depth++
	}
}

// Path returns data keys and list indexes leading from the root to c.
func (t *IndexedTree) Path(c values.Chunk) []any {
	var path []any
	for {
		ref, ok := t.DataMap[c]
		if !ok || ref.IsRoot() {
			break
		}
		if ref.Field != nil {
			path = append(path, ref.Field.DataKey())
		} else {
			path = append(path, ref.Index)
		}
		c = ref.Parent
	}
	slices.Reverse(path)
	return path
}

func (t *IndexedTree) register(c values.Chunk, parent ParentRef) {
	t.DataMap[c] = parent
	if id, ok := sourceOf(c.Raw()); ok {
		t.sources[id] = c
	}
	if oc, ok := c.(*values.ObjectChunk); ok {
		if k := oc.Key(); k != "" {
			t.Nodes[k] = append(t.Nodes[k], oc)
		}
		if tn := oc.TypeName(); tn != "" {
			t.TypeMap[tn] = append(t.TypeMap[tn], oc)
		}
	}
}

func (t *IndexedTree) contains(c values.Chunk) bool {
	_, ok := t.DataMap[c]
	return ok
}

// sourceID is the identity of a raw map or a non-empty raw slice.
type sourceID struct {
	ptr unsafe.Pointer
	n   int
}

func sourceOf(raw any) (sourceID, bool) {
	switch raw := raw.(type) {
	case map[string]any:
		if raw == nil {
			return sourceID{}, false
		}
		return sourceID{reflect.ValueOf(raw).UnsafePointer(), -1}, true
	case []any:
		// empty slices may share a data pointer
		if len(raw) == 0 {
			return sourceID{}, false
		}
		return sourceID{unsafe.Pointer(unsafe.SliceData(raw)), len(raw)}, true
	default:
		return sourceID{}, false
	}
}

// MissingFields records fields known to be absent from raw objects, keyed by
// the identity of the raw map. The zero value is empty; a nil *MissingFields
// reads as empty.
type MissingFields struct {
	byObject map[sourceID][]*descriptor.FieldInfo
	objects  []map[string]any
}

func (mf *MissingFields) Add(obj map[string]any, f *descriptor.FieldInfo) {
	id, ok := sourceOf(obj)
	if !ok {
		return
	}
	if mf.byObject == nil {
		mf.byObject = make(map[sourceID][]*descriptor.FieldInfo)
	}
	fields, seen := mf.byObject[id]
	if !seen {
		mf.objects = append(mf.objects, obj)
	}
	if !slices.Contains(fields, f) {
		mf.byObject[id] = append(fields, f)
	}
}

func (mf *MissingFields) Get(obj map[string]any) []*descriptor.FieldInfo {
	if mf == nil || mf.byObject == nil {
		return nil
	}
	id, ok := sourceOf(obj)
	if !ok {
		return nil
	}
	return mf.byObject[id]
}

func (mf *MissingFields) Len() int {
	if mf == nil {
		return 0
	}
	return len(mf.byObject)
}

// Objects returns the raw objects with missing fields in insertion order.
func (mf *MissingFields) Objects() []map[string]any {
	if mf == nil {
		return nil
	}
	return mf.objects
}

func (mf *MissingFields) Merge(other *MissingFields) {
	for _, obj := range other.Objects() {
		for _, f := range other.Get(obj) {
			mf.Add(obj, f)
		}
	}
}
