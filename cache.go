package gqlcache

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
	"github.com/andreyvit/gqlcache/values"
)

const defaultPartition = ""

// Cache is a normalized cache of operation results.
//
// Cache is not safe for concurrent use. Calls made from inside a Batch
// callback join the open transaction.
type Cache struct {
	env     *forest.Env
	logger  *slog.Logger
	verbose bool
	opt     Options

	base       *forest.Forest
	baseShared bool
	layers     []*layer

	ops     map[string]*descriptor.Operation
	txStack []*Tx
	seq     uint64

	lru        map[string]*simplelru.LRU[string, struct{}]
	watches    map[string][]*watch
	readCache  map[readKey]*readEntry
	retained   map[string]int
	orphanDocs map[*descriptor.PossibleSelections]*descriptor.Document

	stats Counters
}

type Options struct {
	Logger  *slog.Logger
	Verbose bool

	// KeyFunc identifies objects; forest.DefaultKeyFunc when nil.
	KeyFunc forest.KeyFunc
	// ListItemKey keys list items that are not nodes.
	ListItemKey func(item values.ObjectValue, index int) (string, bool)

	// MaxOperationCount is the number of trees EvictOldData keeps in a
	// partition without its own limit. Zero disables eviction of such
	// partitions.
	MaxOperationCount int
	Partitions        map[string]PartitionConfig
	// Partition buckets operations into partitions. Every operation is in
	// the default "" partition when nil.
	Partition func(op *descriptor.Operation) string

	// NonEvictableQueries lists root field names. Operations selecting any
	// of them are never evicted.
	NonEvictableQueries []string

	// AutoEvict runs EvictOldData after every outermost transaction.
	AutoEvict bool

	// KeepOrphanNodes retains entities of evicted operations as detached
	// fragment trees instead of dropping them.
	KeepOrphanNodes bool
}

type PartitionConfig struct {
	MaxOperationCount int
}

func New(opt Options) *Cache {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		env: &forest.Env{
			KeyFunc:     opt.KeyFunc,
			ListItemKey: opt.ListItemKey,
			Logger:      logger,
			Verbose:     opt.Verbose,
		},
		logger:     logger,
		verbose:    opt.Verbose,
		opt:        opt,
		base:       forest.New(),
		ops:        make(map[string]*descriptor.Operation),
		lru:        make(map[string]*simplelru.LRU[string, struct{}]),
		watches:    make(map[string][]*watch),
		readCache:  make(map[readKey]*readEntry),
		retained:   make(map[string]int),
		orphanDocs: make(map[*descriptor.PossibleSelections]*descriptor.Document),
	}
}

// canon returns the operation instance the cache uses for op's key.
func (c *Cache) canon(op *descriptor.Operation) *descriptor.Operation {
	if existing := c.ops[op.Key()]; existing != nil {
		return existing
	}
	c.ops[op.Key()] = op
	return op
}

// Operations returns operations with a confirmed tree, ordered by key.
func (c *Cache) Operations() []*descriptor.Operation {
	var ops []*descriptor.Operation
	for _, key := range c.base.OperationKeys() {
		ops = append(ops, c.ops[key])
	}
	return ops
}

// Tree returns the visible tree of the operation.
func (c *Cache) Tree(op *descriptor.Operation, optimistic bool) *forest.IndexedTree {
	return c.effectiveReadLayers(optimistic).Tree(op.Key())
}

// mutableBase returns the base forest, copying it first when a transaction
// holds on to the current one for rollback.
func (c *Cache) mutableBase() *forest.Forest {
	if c.baseShared {
		c.base = c.base.Clone()
		c.baseShared = false
	}
	return c.base
}

func (c *Cache) touch(op *descriptor.Operation) {
	part := c.partition(op)
	l := c.lru[part]
	if l == nil {
		l = must(simplelru.NewLRU[string, struct{}](math.MaxInt32, nil))
		c.lru[part] = l
	}
	l.Add(op.Key(), struct{}{})
}

func (c *Cache) forget(op *descriptor.Operation) {
	if l := c.lru[c.partition(op)]; l != nil {
		l.Remove(op.Key())
	}
}

func (c *Cache) partition(op *descriptor.Operation) string {
	if c.opt.Partition == nil {
		return defaultPartition
	}
	return c.opt.Partition(op)
}

func (c *Cache) partitionLimit(part string) int {
	if pc, ok := c.opt.Partitions[part]; ok {
		return pc.MaxOperationCount
	}
	return c.opt.MaxOperationCount
}

func (c *Cache) debug(msg string, attrs ...slog.Attr) {
	if c.verbose {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
