package forest

import (
	"maps"
	"slices"

	"github.com/andreyvit/gqlcache/values"
)

// Forest holds the trees of one layer: the confirmed data or one optimistic
// layer. Trees are keyed by operation key.
type Forest struct {
	Trees map[string]*IndexedTree

	// OperationsByNodes maps node keys to the keys of operations whose
	// trees contain the node.
	OperationsByNodes map[string]map[string]struct{}

	// DeletedNodes lists nodes that lost their last tree in this forest.
	DeletedNodes map[string]struct{}

	// ExtraRootIDs lists entity keys used as roots of fragment operations.
	ExtraRootIDs map[string]struct{}
}

func New() *Forest {
	return &Forest{
		Trees:             make(map[string]*IndexedTree),
		OperationsByNodes: make(map[string]map[string]struct{}),
		DeletedNodes:      make(map[string]struct{}),
		ExtraRootIDs:      make(map[string]struct{}),
	}
}

func (f *Forest) Tree(opKey string) *IndexedTree {
	return f.Trees[opKey]
}

func (f *Forest) Len() int {
	return len(f.Trees)
}

// OperationKeys returns keys of every tree, sorted.
func (f *Forest) OperationKeys() []string {
	return slices.Sorted(maps.Keys(f.Trees))
}

// Operations returns keys of operations referencing the node, sorted.
func (f *Forest) Operations(nodeKey string) []string {
	return slices.Sorted(maps.Keys(f.OperationsByNodes[nodeKey]))
}

// SetTree adds or replaces the tree of its operation and updates the
// reverse index.
func (f *Forest) SetTree(t *IndexedTree) {
	values.Assert(t.Prev == nil, "%v: committing a tree with Prev set", t.Operation)
	opKey := t.Operation.Key()
	if old := f.Trees[opKey]; old != nil {
		f.unlink(opKey, old)
	}
	f.Trees[opKey] = t
	for key := range t.Nodes {
		ops := f.OperationsByNodes[key]
		if ops == nil {
			ops = make(map[string]struct{})
			f.OperationsByNodes[key] = ops
		}
		ops[opKey] = struct{}{}
		delete(f.DeletedNodes, key)
	}
	if t.Operation.IsFragment() {
		f.ExtraRootIDs[t.Operation.RootKey()] = struct{}{}
	}
}

// RemoveTree removes the tree of the operation and returns it, or nil.
func (f *Forest) RemoveTree(opKey string) *IndexedTree {
	t := f.Trees[opKey]
	if t == nil {
		return nil
	}
	delete(f.Trees, opKey)
	f.unlink(opKey, t)
	return t
}

func (f *Forest) unlink(opKey string, t *IndexedTree) {
	for key := range t.Nodes {
		ops := f.OperationsByNodes[key]
		delete(ops, opKey)
		if len(ops) == 0 {
			delete(f.OperationsByNodes, key)
			f.DeletedNodes[key] = struct{}{}
		}
	}
	if t.Operation.IsFragment() {
		root := t.Operation.RootKey()
		if _, ok := f.OperationsByNodes[root]; !ok {
			delete(f.ExtraRootIDs, root)
		}
	}
}

// Clone copies the forest's maps. Trees are immutable and shared.
func (f *Forest) Clone() *Forest {
	c := &Forest{
		Trees:             maps.Clone(f.Trees),
		OperationsByNodes: make(map[string]map[string]struct{}, len(f.OperationsByNodes)),
		DeletedNodes:      maps.Clone(f.DeletedNodes),
		ExtraRootIDs:      maps.Clone(f.ExtraRootIDs),
	}
	for k, ops := range f.OperationsByNodes {
		c.OperationsByNodes[k] = maps.Clone(ops)
	}
	return c
}

// NodeChunks returns every chunk of the node in the forest, in operation key
// order.
func (f *Forest) NodeChunks(nodeKey string) []*values.ObjectChunk {
	var chunks []*values.ObjectChunk
	for _, opKey := range f.Operations(nodeKey) {
		for _, c := range f.Trees[opKey].Nodes[nodeKey] {
			if !slices.Contains(chunks, c) {
				chunks = append(chunks, c)
			}
		}
	}
	return chunks
}

// View is an ordered stack of layers, topmost first. The base forest is the
// last element.
type View []*Forest

// Tree returns the topmost tree of the operation.
func (v View) Tree(opKey string) *IndexedTree {
	for _, f := range v {
		if t := f.Trees[opKey]; t != nil {
			return t
		}
	}
	return nil
}

// Owner returns the topmost layer holding a tree of the operation.
func (v View) Owner(opKey string) *Forest {
	for _, f := range v {
		if f.Trees[opKey] != nil {
			return f
		}
	}
	return nil
}

// Operations returns keys of operations whose visible tree references the
// node, sorted.
func (v View) Operations(nodeKey string) []string {
	var out []string
	for i, f := range v {
		for opKey := range f.OperationsByNodes[nodeKey] {
			if v[:i].hasTree(opKey) || slices.Contains(out, opKey) {
				continue
			}
			out = append(out, opKey)
		}
	}
	slices.Sort(out)
	return out
}

func (v View) hasTree(opKey string) bool {
	return v.Tree(opKey) != nil
}

// NodeChunks returns chunks of the node from visible trees, topmost layer
// first. Trees shadowed by a higher layer are skipped.
func (v View) NodeChunks(nodeKey string) []*values.ObjectChunk {
	var chunks []*values.ObjectChunk
	for i, f := range v {
		for _, opKey := range f.Operations(nodeKey) {
			if v[:i].hasTree(opKey) {
				continue
			}
			for _, c := range f.Trees[opKey].Nodes[nodeKey] {
				if !slices.Contains(chunks, c) {
					chunks = append(chunks, c)
				}
			}
		}
	}
	return chunks
}

// Provider returns a chunk provider reading from the view, preferring
// chunks of the given trees.
func (v View) Provider(first ...*IndexedTree) ChunkProvider {
	return func(nodeKey string) []*values.ObjectChunk {
		var chunks []*values.ObjectChunk
		for _, t := range first {
			if t != nil {
				chunks = append(chunks, t.Nodes[nodeKey]...)
			}
		}
		for _, c := range v.NodeChunks(nodeKey) {
			if !slices.Contains(chunks, c) {
				chunks = append(chunks, c)
			}
		}
		return chunks
	}
}
