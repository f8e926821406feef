package gqlcache

import (
	"log/slog"
	"slices"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/diff"
	"github.com/andreyvit/gqlcache/forest"
	"github.com/andreyvit/gqlcache/values"
)

type writeResult struct {
	diff         *forest.TreeDifference
	changedOps   []string
	changedNodes []string
}

// apply executes a command against target, nil being the confirmed forest,
// and rebuilds the optimistic layers above target that reference what
// changed.
func (c *Cache) apply(tx *Tx, target *layer, cmd *command) *writeResult {
	wr := c.execute(tx, target, cmd)
	if len(wr.changedOps) == 0 && len(wr.changedNodes) == 0 {
		return wr
	}
	from := 0
	if target != nil {
		from = c.layerIndex(target) + 1
	}
	if i := c.lowestLayerReferencing(from, cmd.opKey(), wr.changedNodes); i >= 0 {
		c.replayLayers(tx, i)
	}
	return wr
}

// execute applies a command to target alone.
func (c *Cache) execute(tx *Tx, target *layer, cmd *command) *writeResult {
	var wr *writeResult
	switch cmd.op {
	case OpWrite:
		wr = c.applyWrite(tx, target, cmd.operation, cmd.result)
	case OpModify:
		wr = c.applyModify(tx, target, cmd.nodeKey, cmd.fields)
	default:
		panic("unreachable")
	}
	c.invalidateMaterializedNodes(wr.changedNodes, target != nil)
	return wr
}

func (c *Cache) destination(target *layer) *forest.Forest {
	if target == nil {
		return c.mutableBase()
	}
	return target.forest
}

func (c *Cache) applyWrite(tx *Tx, target *layer, op *descriptor.Operation, result map[string]any) *writeResult {
	view := c.effectiveWriteLayers(target)
	own := view.Tree(op.Key())

	incoming := forest.IndexTree(c.env, op, result, nil, own)
	incoming.Prev = nil
	td := forest.DiffTree(view, incoming, c.env)

	affected := forest.ResolveAffectedOperations(view, td)

	dest := c.destination(target)
	provider := view.Provider(incoming)
	wr := &writeResult{diff: td}
	for _, opKey := range sortedKeys(affected) {
		if opKey == op.Key() {
			continue
		}
		res := forest.UpdateTree(c.env, view.Tree(opKey), affected[opKey], provider)
		if !res.IsChanged() {
			continue
		}
		dest.SetTree(res.UpdatedTree)
		wr.changedOps = append(wr.changedOps, opKey)
		c.stats.TreeUpdates++
	}

	// Updating the existing tree keeps unchanged parts of the result
	// reference-equal; it is only used when it ends up complete.
	next := incoming
	if own != nil {
		res := forest.UpdateTree(c.env, own, affected[op.Key()], provider)
		if len(forest.FindMissingFields(res.UpdatedTree)) == 0 {
			next = res.UpdatedTree
		}
	}
	if next != own {
		dest.SetTree(next)
		wr.changedOps = append(wr.changedOps, op.Key())
	}
	if target == nil {
		c.touch(op)
	}

	wr.changedNodes = append(sortedKeys(td.NodeDifference), td.NewNodes...)
	slices.Sort(wr.changedNodes)
	tx.affect(wr.changedOps...)
	c.stats.Writes++
	c.debug("write", slog.String("op", op.Key()), slog.Bool("optimistic", target != nil), slog.Int("changed_ops", len(wr.changedOps)), slog.Int("changed_nodes", len(wr.changedNodes)), slog.Int("new_nodes", len(td.NewNodes)))
	return wr
}

// applyModify replaces leaf fields of one node, addressed by field key
// (the field name, plus canonical arguments when the field has any), in
// every visible tree selecting them.
func (c *Cache) applyModify(tx *Tx, target *layer, nodeKey string, fields map[string]any) *writeResult {
	wr := &writeResult{}
	view := c.effectiveWriteLayers(target)
	chunks := view.NodeChunks(nodeKey)
	if len(chunks) == 0 {
		return wr
	}
	agg := values.NewObjectAggregate(chunks...)

	d := diff.NewObjectDifference()
	for _, fk := range sortedKeys(fields) {
		nv := values.NewLeafValue(fields[fk])
		old, ok := values.ResolveField(agg, fk)
		switch {
		case !ok:
			d.SetFieldDifference(fk, &diff.Filler{NewValue: nv})
		case values.IsLeafValue(old) && values.LeafEqual(old, nv):
			continue
		default:
			d.SetFieldDifference(fk, &diff.Replacement{OldValue: old, NewValue: nv})
		}
	}
	if !d.IsDirty() {
		return wr
	}

	dest := c.destination(target)
	diffs := map[string]*diff.ObjectDifference{nodeKey: d}
	provider := view.Provider()
	for _, opKey := range view.Operations(nodeKey) {
		res := forest.UpdateTree(c.env, view.Tree(opKey), diffs, provider)
		if !res.IsChanged() {
			continue
		}
		dest.SetTree(res.UpdatedTree)
		wr.changedOps = append(wr.changedOps, opKey)
		c.stats.TreeUpdates++
	}
	wr.changedNodes = []string{nodeKey}
	tx.affect(wr.changedOps...)
	c.stats.Modifications++
	c.debug("modify", slog.String("node", nodeKey), slog.Bool("optimistic", target != nil), slog.Int("changed_ops", len(wr.changedOps)))
	return wr
}
