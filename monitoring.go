package gqlcache

// Counters accumulate over the lifetime of a Cache.
type Counters struct {
	Transactions  int
	Rollbacks     int
	Writes        int
	Modifications int
	// TreeUpdates counts trees of other operations rewritten by writes.
	TreeUpdates   int
	Replays       int
	Reads         int
	ReadMisses    int
	Evictions     int
	Notifications int
}

type Stats struct {
	Counters

	Operations       int
	OptimisticTrees  int
	Nodes            int
	Layers           int
	Watches          int
	ReadCacheEntries int
	// Partitions holds the number of confirmed trees per partition.
	Partitions map[string]int
}

func (s *Stats) TotalTrees() int {
	return s.Operations + s.OptimisticTrees
}

func (s *Stats) ReadHitRate() float64 {
	if s.Reads == 0 {
		return 0
	}
	return float64(s.Reads-s.ReadMisses) / float64(s.Reads)
}

func (c *Cache) Stats() Stats {
	s := Stats{
		Counters:         c.stats,
		Operations:       c.base.Len(),
		Nodes:            len(c.base.OperationsByNodes),
		Layers:           len(c.layers),
		ReadCacheEntries: len(c.readCache),
		Partitions:       make(map[string]int),
	}
	for _, l := range c.layers {
		s.OptimisticTrees += l.forest.Len()
	}
	for _, ws := range c.watches {
		s.Watches += len(ws)
	}
	for key := range c.base.Trees {
		s.Partitions[c.partition(c.ops[key])]++
	}
	return s
}
