package gqlcache

import (
	"log/slog"
	"slices"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
)

// EvictOldData removes the least recently used confirmed trees of every
// partition holding more than its MaxOperationCount. Watched and retained
// operations, and operations selecting a NonEvictableQueries root field,
// are kept. Returns keys of evicted operations.
func (c *Cache) EvictOldData() []string {
	var evicted []string
	must0(c.Batch(BatchOptions{}, func(tx *Tx) error {
		evicted = c.evict(tx)
		return nil
	}))
	return evicted
}

// Retain protects the operation from eviction until release is called.
func (c *Cache) Retain(op *descriptor.Operation) (release func()) {
	key := c.canon(op).Key()
	c.retained[key]++
	var released bool
	return func() {
		if released {
			return
		}
		released = true
		if c.retained[key]--; c.retained[key] <= 0 {
			delete(c.retained, key)
		}
	}
}

func (c *Cache) evict(tx *Tx) []string {
	var evicted []string
	for _, part := range sortedKeys(c.lru) {
		limit := c.partitionLimit(part)
		if limit <= 0 {
			continue
		}
		lru := c.lru[part]

		var live []string
		for _, key := range lru.Keys() {
			if c.base.Tree(key) == nil {
				lru.Remove(key)
				continue
			}
			live = append(live, key)
		}

		excess := len(live) - limit
		for _, key := range live {
			if excess <= 0 {
				break
			}
			op := c.ops[key]
			if !c.isEvictable(op) {
				continue
			}
			c.evictOperation(tx, op)
			evicted = append(evicted, key)
			excess--
		}
		if excess > 0 {
			c.debug("partition over capacity", slog.String("partition", part), slog.Int("limit", limit), slog.Int("excess", excess))
		}
	}
	if len(evicted) > 0 {
		c.invalidateMaterialized(false)
	}
	return evicted
}

func (c *Cache) isEvictable(op *descriptor.Operation) bool {
	key := op.Key()
	if c.isWatched(key) || c.retained[key] > 0 {
		return false
	}
	for _, name := range op.RootFieldNames() {
		if slices.Contains(c.opt.NonEvictableQueries, name) {
			return false
		}
	}
	return true
}

func (c *Cache) evictOperation(tx *Tx, op *descriptor.Operation) {
	base := c.mutableBase()
	t := base.RemoveTree(op.Key())
	c.forget(op)
	c.forgetReads(op.Key())
	tx.affect(op.Key())
	c.stats.Evictions++

	var kept []string
	if c.opt.KeepOrphanNodes && !c.isOrphanOperation(op) {
		kept = c.keepOrphans(base, t)
	}
	c.debug("evicted", slog.String("op", op.Key()), slog.Int("nodes", len(t.Nodes)), slog.Int("kept_orphans", len(kept)))
	tx.emit(&Change{op: OpEvict, operation: op, changedOps: []string{op.Key()}, changedNodes: kept})
}

// keepOrphans re-roots entities of an evicted tree that no other tree
// references as fragment trees of their own. Returns their keys.
func (c *Cache) keepOrphans(base *forest.Forest, t *forest.IndexedTree) []string {
	var kept []string
	for _, key := range t.NodeKeys() {
		if len(base.OperationsByNodes[key]) > 0 {
			continue
		}
		for _, chunk := range t.Nodes[key] {
			if chunk == t.Root {
				continue
			}
			doc := c.orphanDocument(chunk.TypeName(), chunk.PossibleSelections())
			op := c.canon(doc.OperationAt(key, chunk.Operation().Variables()))
			if base.Tree(op.Key()) != nil {
				continue
			}
			base.SetTree(forest.IndexTree(c.env, op, chunk.Data(), nil, nil))
			c.touch(op)
		}
		if len(base.OperationsByNodes[key]) > 0 {
			kept = append(kept, key)
		}
	}
	return kept
}

func (c *Cache) orphanDocument(typeName string, ps *descriptor.PossibleSelections) *descriptor.Document {
	if doc := c.orphanDocs[ps]; doc != nil {
		return doc
	}
	doc := descriptor.NewFragment("orphan"+typeName, typeName, ps)
	c.orphanDocs[ps] = doc
	return doc
}

func (c *Cache) isOrphanOperation(op *descriptor.Operation) bool {
	if !op.IsFragment() {
		return false
	}
	return c.orphanDocs[op.Selections()] == op.Document()
}
