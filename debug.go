package gqlcache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andreyvit/gqlcache/forest"
)

type DumpFlags uint64

const (
	DumpOperations = DumpFlags(1 << iota)
	DumpData
	DumpNodes
	DumpLayers
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump describes the cache contents for debugging and tests.
func (c *Cache) Dump(f DumpFlags) string {
	var buf strings.Builder
	if f.Contains(DumpStats) {
		s := c.Stats()
		fmt.Fprintln(&buf, dumpSep1)
		fmt.Fprintf(&buf, "stats: operations = %d, optimistic_trees = %d, nodes = %d, layers = %d, watches = %d, writes = %d, replays = %d, evictions = %d\n", s.Operations, s.OptimisticTrees, s.Nodes, s.Layers, s.Watches, s.Writes, s.Replays, s.Evictions)
	}
	c.dumpForest(&buf, "confirmed", f, c.base)
	if f.Contains(DumpLayers) {
		for i, l := range c.layers {
			c.dumpForest(&buf, fmt.Sprintf("layer%d[%s]", i, l.tag), f, l.forest)
		}
	}
	return buf.String()
}

func (c *Cache) dumpForest(w *strings.Builder, prefix string, f DumpFlags, fr *forest.Forest) {
	fmt.Fprintln(w, dumpSep1)
	fmt.Fprintf(w, "%s (%d operations, %d nodes)\n", prefix, fr.Len(), len(fr.OperationsByNodes))

	if f.Contains(DumpOperations) && fr.Len() > 0 {
		fmt.Fprintln(w, dumpSep2)
		for i, key := range fr.OperationKeys() {
			c.dumpTree(w, prefix, f, i+1, fr.Tree(key))
		}
	}
	if f.Contains(DumpNodes) {
		fmt.Fprintln(w, rpadf('-', "-- %s nodes ", prefix))
		for _, key := range sortedKeys(fr.OperationsByNodes) {
			fmt.Fprintf(w, "%s.n.%s => %s\n", prefix, key, strings.Join(fr.Operations(key), ", "))
		}
	}
}

func (c *Cache) dumpTree(w *strings.Builder, prefix string, f DumpFlags, pos int, t *forest.IndexedTree) {
	status := ""
	if !t.IsComplete() {
		status = " INCOMPLETE"
	}
	fmt.Fprintf(w, "%s.%d = %s (g%d, %d nodes)%s\n", prefix, pos, t.Operation.Key(), t.Generation, len(t.Nodes), status)
	if f.Contains(DumpData) {
		raw, err := json.Marshal(t.Result)
		if err != nil {
			fmt.Fprintf(w, "%s.%d.data = <%v>\n", prefix, pos, err)
		} else {
			fmt.Fprintf(w, "%s.%d.data = %s\n", prefix, pos, raw)
		}
	}
}

func rpadf(pad rune, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	return rpad(s, 80, pad)
}
