package gqlcache

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
)

type BatchOptions struct {
	// Optimistic sends writes into a new optimistic layer, removed with
	// RemoveOptimistic(Tag).
	Optimistic bool
	// Tag names the layer; a generated id when empty.
	Tag string
}

// Tx is an open transaction. Writes of a non-optimistic Tx nested inside an
// optimistic one go into the enclosing optimistic layer.
type Tx struct {
	cache  *Cache
	parent *Tx
	opts   BatchOptions
	layer  *layer

	affected map[string]struct{}
	changes  []*Change

	baseBefore   *forest.Forest
	layersBefore []layerMark

	changeFlags   ChangeFlags
	changeHandler func(tx *Tx, chg *Change)
}

type layerMark struct {
	layer *layer
	n     int
}

func (tx *Tx) Cache() *Cache {
	return tx.cache
}

func (tx *Tx) IsOptimistic() bool {
	return tx.layer != nil
}

// OnChange installs a handler called synchronously for every change of
// this transaction and its nested transactions that matches flags.
func (tx *Tx) OnChange(flags ChangeFlags, f func(tx *Tx, chg *Change)) {
	tx.changeFlags = flags
	tx.changeHandler = f
}

// Changes returns changes made by this transaction and its committed nested
// transactions.
func (tx *Tx) Changes() []*Change {
	return tx.changes
}

// Batch runs f in a transaction. A call made while another transaction is
// open nests inside it; only the outermost transaction notifies watchers and
// runs automatic eviction.
//
// If f returns an error or panics, everything written by the transaction is
// undone: the confirmed forest is restored, optimistic layers it created are
// removed, and layers it wrote into are rebuilt without its writes. A panic
// is returned as an error.
func (c *Cache) Batch(opts BatchOptions, f func(tx *Tx) error) error {
	parent := c.currentTx()
	tx := &Tx{
		cache:      c,
		parent:     parent,
		opts:       opts,
		affected:   make(map[string]struct{}),
		baseBefore: c.base,
	}
	c.baseShared = true
	for _, l := range c.layers {
		tx.layersBefore = append(tx.layersBefore, layerMark{l, len(l.commands)})
	}
	switch {
	case opts.Optimistic:
		tx.layer = c.createOptimisticLayer(opts.Tag)
	case parent != nil:
		tx.layer = parent.layer
	}

	c.txStack = append(c.txStack, tx)
	err := safelyCall(f, tx)
	c.txStack = c.txStack[:len(c.txStack)-1]

	if err != nil {
		tx.rollback()
		c.stats.Rollbacks++
	}
	c.baseShared = c.isBaseHeld()

	if parent != nil {
		for k := range tx.affected {
			parent.affected[k] = struct{}{}
		}
		if err == nil {
			parent.changes = append(parent.changes, tx.changes...)
		}
		return err
	}

	c.stats.Transactions++
	if err == nil && c.opt.AutoEvict {
		c.evict(tx)
	}
	c.notifyWatches(tx.affected)
	return err
}

func (c *Cache) currentTx() *Tx {
	if n := len(c.txStack); n > 0 {
		return c.txStack[n-1]
	}
	return nil
}

func (c *Cache) isBaseHeld() bool {
	for _, tx := range c.txStack {
		if tx.baseBefore == c.base {
			return true
		}
	}
	return false
}

// rollback restores the state the transaction started with.
func (tx *Tx) rollback() {
	c := tx.cache
	rebuild := false
	if c.base != tx.baseBefore {
		tx.affectForest(c.base)
		c.base = tx.baseBefore
		tx.affectForest(c.base)
		rebuild = true
	}

	before := make([]*layer, len(tx.layersBefore))
	for i, m := range tx.layersBefore {
		before[i] = m.layer
		if len(m.layer.commands) != m.n {
			m.layer.commands = m.layer.commands[:m.n]
			rebuild = true
		}
	}
	for _, l := range c.layers {
		if !slices.Contains(before, l) {
			tx.affectForest(l.forest)
		}
	}
	if !slices.Equal(c.layers, before) {
		c.layers = before
		rebuild = true
	}

	if rebuild && len(c.layers) > 0 {
		c.replayLayers(tx, 0)
	}
	c.invalidateMaterialized(false)
	c.debug("transaction rolled back", slog.Bool("optimistic", tx.opts.Optimistic), slog.String("tag", tx.opts.Tag))
}

func (tx *Tx) affect(opKeys ...string) {
	for _, k := range opKeys {
		tx.affected[k] = struct{}{}
	}
}

func (tx *Tx) affectForest(f *forest.Forest) {
	for k := range f.Trees {
		tx.affected[k] = struct{}{}
	}
}

func (tx *Tx) emit(chg *Change) {
	tx.changes = append(tx.changes, chg)
	for t := tx; t != nil; t = t.parent {
		if t.changeHandler != nil && t.changeFlags.accepts(chg) {
			t.changeHandler(t, chg)
		}
	}
}

// Write stores an operation result. Every other tree sharing entities with
// the result is updated to agree with it.
func (tx *Tx) Write(op *descriptor.Operation, result map[string]any) error {
	if op == nil {
		return opErrf(nil, nil, "nil operation")
	}
	if result == nil {
		return opErrf(op, nil, "nil result")
	}
	c := tx.cache
	op = c.canon(op)
	cmd := c.newCommand(&command{op: OpWrite, operation: op, result: result})
	if tx.layer != nil {
		tx.layer.commands = append(tx.layer.commands, cmd)
	}
	wr := c.apply(tx, tx.layer, cmd)
	tx.emit(&Change{op: OpWrite, operation: op, layer: tx.layerTag(), changedOps: wr.changedOps, changedNodes: wr.changedNodes, diffErr: wr.diff.Err()})
	return nil
}

// WriteFragment stores data of a single entity, selected by a fragment
// document.
func (tx *Tx) WriteFragment(doc *descriptor.Document, rootKey string, vars map[string]any, data map[string]any) error {
	if doc.Kind() != descriptor.Fragment {
		return opErrf(nil, nil, "%s is not a fragment", doc)
	}
	if rootKey == "" {
		return opErrf(nil, nil, "fragment %s written without an entity key", doc)
	}
	return tx.Write(doc.OperationAt(rootKey, vars), data)
}

// Modify replaces leaf fields of an entity in every tree that selects them.
// Fields are addressed by name, or by name plus canonical JSON arguments
// like `count({"max":10})` for fields with arguments.
func (tx *Tx) Modify(nodeKey string, fields map[string]any) error {
	if nodeKey == "" {
		return opErrf(nil, nil, "empty node key")
	}
	if len(fields) == 0 {
		return nil
	}
	c := tx.cache
	cmd := c.newCommand(&command{op: OpModify, nodeKey: nodeKey, fields: fields})
	if tx.layer != nil {
		tx.layer.commands = append(tx.layer.commands, cmd)
	}
	wr := c.apply(tx, tx.layer, cmd)
	tx.emit(&Change{op: OpModify, nodeKey: nodeKey, layer: tx.layerTag(), changedOps: wr.changedOps, changedNodes: wr.changedNodes})
	return nil
}

// RemoveOptimistic removes every optimistic layer tagged tag and returns
// how many were removed. Layers above a removed one are rebuilt.
func (tx *Tx) RemoveOptimistic(tag string) int {
	return tx.cache.removeOptimisticLayers(tx, tag)
}

func (tx *Tx) layerTag() string {
	if tx.layer == nil {
		return ""
	}
	return tx.layer.tag
}

func (c *Cache) Write(op *descriptor.Operation, result map[string]any) error {
	return c.Batch(BatchOptions{}, func(tx *Tx) error {
		return tx.Write(op, result)
	})
}

func (c *Cache) WriteFragment(doc *descriptor.Document, rootKey string, vars map[string]any, data map[string]any) error {
	return c.Batch(BatchOptions{}, func(tx *Tx) error {
		return tx.WriteFragment(doc, rootKey, vars, data)
	})
}

func (c *Cache) Modify(nodeKey string, fields map[string]any) error {
	return c.Batch(BatchOptions{}, func(tx *Tx) error {
		return tx.Modify(nodeKey, fields)
	})
}

func (c *Cache) RemoveOptimistic(tag string) int {
	var n int
	must0(c.Batch(BatchOptions{}, func(tx *Tx) error {
		n = tx.RemoveOptimistic(tag)
		return nil
	}))
	return n
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func (p panicked) Unwrap() error {
	err, _ := p.reason.(error)
	return err
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}
