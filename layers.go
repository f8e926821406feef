package gqlcache

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/oklog/ulid/v2"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
)

// layer is an optimistic layer: the trees written by one optimistic
// transaction, shadowing lower layers and the confirmed forest. commands
// holds everything written into it so it can be rebuilt.
type layer struct {
	forest   *forest.Forest
	tag      string
	id       ulid.ULID
	commands []*command
}

type command struct {
	op  Op
	seq uint64

	// OpWrite
	operation *descriptor.Operation
	result    map[string]any

	// OpModify
	nodeKey string
	fields  map[string]any
}

func (cmd *command) opKey() string {
	if cmd.operation == nil {
		return ""
	}
	return cmd.operation.Key()
}

func (c *Cache) newCommand(cmd *command) *command {
	c.seq++
	cmd.seq = c.seq
	return cmd
}

func (c *Cache) createOptimisticLayer(tag string) *layer {
	id := ulid.Make()
	if tag == "" {
		tag = id.String()
	}
	l := &layer{
		forest: forest.New(),
		tag:    tag,
		id:     id,
	}
	c.layers = append(c.layers, l)
	c.debug("optimistic layer created", slog.String("tag", tag), slog.String("id", id.String()))
	return l
}

func (c *Cache) layerIndex(l *layer) int {
	return slices.Index(c.layers, l)
}

// removeOptimisticLayers removes every layer tagged tag. Layers stacked
// above the lowest removed one are rebuilt from their commands, since they
// may hold data read through a removed layer. Returns the number of layers
// removed.
func (c *Cache) removeOptimisticLayers(tx *Tx, tag string) int {
	lowest := -1
	var kept []*layer
	for i, l := range c.layers {
		if l.tag == tag {
			if lowest < 0 {
				lowest = i
			}
			tx.affectForest(l.forest)
			continue
		}
		kept = append(kept, l)
	}
	if lowest < 0 {
		return 0
	}
	removed := len(c.layers) - len(kept)
	c.layers = kept
	c.debug("optimistic layers removed", slog.String("tag", tag), slog.Int("count", removed))
	c.replayLayers(tx, lowest)
	c.invalidateMaterialized(true)
	return removed
}

// removeLayer removes a single layer, rebuilding the layers above it.
func (c *Cache) removeLayer(tx *Tx, l *layer) {
	i := c.layerIndex(l)
	if i < 0 {
		return
	}
	tx.affectForest(l.forest)
	c.layers = slices.Delete(c.layers, i, i+1)
	c.replayLayers(tx, i)
	c.invalidateMaterialized(true)
}

// replayLayers rebuilds layers from index from upwards by re-applying their
// commands on top of the layers below.
func (c *Cache) replayLayers(tx *Tx, from int) {
	for i := max(from, 0); i < len(c.layers); i++ {
		l := c.layers[i]
		old := l.forest
		l.forest = forest.New()
		cmds := c.replayCommands(i)
		for _, cmd := range cmds {
			c.execute(tx, l, cmd)
		}
		tx.affectForest(old)
		tx.affectForest(l.forest)
		c.stats.Replays++
		c.debug("optimistic layer replayed", slog.String("tag", l.tag), slog.Int("commands", len(cmds)))
	}
}

// replayCommands returns the commands layer i is rebuilt from: its own, plus
// those written into lower layers after its first one, in the order they
// were issued. Later writes into a lower layer thus stay visible over
// earlier writes of the layers above it.
func (c *Cache) replayCommands(i int) []*command {
	l := c.layers[i]
	if len(l.commands) == 0 {
		return nil
	}
	first := l.commands[0].seq
	cmds := slices.Clone(l.commands)
	for _, lower := range c.layers[:i] {
		for _, cmd := range lower.commands {
			if cmd.seq > first {
				cmds = append(cmds, cmd)
			}
		}
	}
	slices.SortStableFunc(cmds, func(a, b *command) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return cmds
}

// lowestLayerReferencing returns the index of the lowest layer at or above
// from with a tree of the operation or referencing any of the nodes, or -1.
func (c *Cache) lowestLayerReferencing(from int, opKey string, nodes []string) int {
	for i := from; i < len(c.layers); i++ {
		l := c.layers[i]
		if opKey != "" && l.forest.Tree(opKey) != nil {
			return i
		}
		for _, key := range nodes {
			if len(l.forest.OperationsByNodes[key]) > 0 {
				return i
			}
		}
	}
	return -1
}

// effectiveReadLayers returns the layers a read sees, topmost first.
func (c *Cache) effectiveReadLayers(optimistic bool) forest.View {
	if !optimistic {
		return forest.View{c.base}
	}
	view := make(forest.View, 0, len(c.layers)+1)
	for _, l := range slices.Backward(c.layers) {
		view = append(view, l.forest)
	}
	return append(view, c.base)
}

// effectiveWriteLayers returns the layers a write into target sees: target
// and everything below it, topmost first. A nil target is the confirmed
// forest.
func (c *Cache) effectiveWriteLayers(target *layer) forest.View {
	if target == nil {
		return forest.View{c.base}
	}
	i := c.layerIndex(target)
	view := make(forest.View, 0, i+2)
	for _, l := range slices.Backward(c.layers[:i+1]) {
		view = append(view, l.forest)
	}
	return append(view, c.base)
}

// LayerTags lists tags of optimistic layers, bottom first.
func (c *Cache) LayerTags() []string {
	tags := make([]string, len(c.layers))
	for i, l := range c.layers {
		tags[i] = l.tag
	}
	return tags
}
