package gqlcache

import (
	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
)

type ReadOptions struct {
	// Optimistic reads see optimistic layers on top of confirmed data.
	Optimistic bool
	// Strict turns missing data into an error.
	Strict bool
}

type ReadResult struct {
	// Data is the operation result, nil when the cache knows nothing of
	// the operation's root. Returned data must not be modified.
	Data     map[string]any
	Complete bool
	Missing  []forest.MissingField

	Tree *forest.IndexedTree
	// Materialized is set when the operation has no tree of its own and
	// the data was assembled from entities written by other operations.
	Materialized bool
}

type readKey struct {
	opKey      string
	optimistic bool
}

type readEntry struct {
	tree         *forest.IndexedTree
	materialized bool
	nodes        map[string]struct{}
	result       *ReadResult
}

// Read returns the cached data of an operation. Data comes from the
// operation's own tree, or is assembled from known entities when the
// operation was never written. Partial data is returned with Complete unset,
// unless opts.Strict is set, in which case a *MissingFieldsError is
// returned.
//
// Repeated reads return the same data map until something the operation
// selects changes.
func (c *Cache) Read(op *descriptor.Operation, opts ReadOptions) (*ReadResult, error) {
	res := c.read(op, opts.Optimistic)
	if opts.Strict {
		if res.Data == nil {
			return res, opErrf(op, ErrNotFound, "no data")
		}
		if !res.Complete {
			return res, missingErrf(op, res.Missing)
		}
	}
	return res, nil
}

// ReadFragment reads an entity through a fragment document.
func (c *Cache) ReadFragment(doc *descriptor.Document, rootKey string, vars map[string]any, opts ReadOptions) (*ReadResult, error) {
	if doc.Kind() != descriptor.Fragment {
		return nil, opErrf(nil, nil, "%s is not a fragment", doc)
	}
	return c.Read(doc.OperationAt(rootKey, vars), opts)
}

func (c *Cache) read(op *descriptor.Operation, optimistic bool) *ReadResult {
	c.stats.Reads++
	key := readKey{op.Key(), optimistic}
	view := c.effectiveReadLayers(optimistic)
	tree := view.Tree(op.Key())
	if tree != nil && view.Owner(op.Key()) == c.base {
		c.touch(op)
	}

	if e := c.readCache[key]; e != nil {
		if e.materialized == (tree == nil) && e.tree == tree {
			return e.result
		}
	}
	c.stats.ReadMisses++

	var e *readEntry
	if tree != nil {
		missing := forest.FindMissingFields(tree)
		e = &readEntry{
			tree: tree,
			result: &ReadResult{
				Data:     tree.Result,
				Complete: len(missing) == 0,
				Missing:  missing,
				Tree:     tree,
			},
		}
	} else {
		e = &readEntry{materialized: true, result: &ReadResult{Materialized: true}}
		if t, _ := forest.Materialize(c.env, op, view.Provider()); t != nil {
			missing := forest.FindMissingFields(t)
			e.result = &ReadResult{
				Data:         t.Result,
				Complete:     len(missing) == 0,
				Missing:      missing,
				Tree:         t,
				Materialized: true,
			}
			e.nodes = make(map[string]struct{}, len(t.Nodes))
			for k := range t.Nodes {
				e.nodes[k] = struct{}{}
			}
		}
	}
	c.readCache[key] = e
	return e.result
}

// invalidateMaterializedNodes drops assembled reads that may see a change of
// the nodes. Incomplete ones are dropped on any change, since new nodes may
// fill them.
func (c *Cache) invalidateMaterializedNodes(nodes []string, optimisticOnly bool) {
	if len(nodes) == 0 {
		return
	}
	for k, e := range c.readCache {
		if !e.materialized || (optimisticOnly && !k.optimistic) {
			continue
		}
		if !e.result.Complete || intersects(e.nodes, nodes) {
			delete(c.readCache, k)
		}
	}
}

func (c *Cache) invalidateMaterialized(optimisticOnly bool) {
	for k, e := range c.readCache {
		if e.materialized && (k.optimistic || !optimisticOnly) {
			delete(c.readCache, k)
		}
	}
}

func (c *Cache) forgetReads(opKey string) {
	delete(c.readCache, readKey{opKey, false})
	delete(c.readCache, readKey{opKey, true})
}

func intersects(set map[string]struct{}, keys []string) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
