package gqlcache

import (
	"log/slog"
	"reflect"
	"slices"

	"github.com/google/go-cmp/cmp"

	"github.com/andreyvit/gqlcache/descriptor"
)

type WatchOptions struct {
	Optimistic bool
	// Immediate calls the callback with the current data before Watch
	// returns.
	Immediate bool
}

type watch struct {
	op        *descriptor.Operation
	opts      WatchOptions
	callback  func(res *ReadResult)
	last      *ReadResult
	cancelled bool
}

// Watch calls callback after every outermost transaction that changed the
// data of the operation or its completeness. Watched operations are never
// evicted. The returned function cancels the watch.
func (c *Cache) Watch(op *descriptor.Operation, opts WatchOptions, callback func(res *ReadResult)) (cancel func()) {
	op = c.canon(op)
	w := &watch{
		op:       op,
		opts:     opts,
		callback: callback,
		last:     c.read(op, opts.Optimistic),
	}
	c.watches[op.Key()] = append(c.watches[op.Key()], w)
	c.debug("watch added", slog.String("op", op.Key()), slog.Int("watches", len(c.watches[op.Key()])))
	if opts.Immediate {
		callback(w.last)
	}
	return func() {
		if w.cancelled {
			return
		}
		w.cancelled = true
		ws := slices.DeleteFunc(c.watches[op.Key()], func(x *watch) bool { return x == w })
		if len(ws) == 0 {
			delete(c.watches, op.Key())
		} else {
			c.watches[op.Key()] = ws
		}
	}
}

func (c *Cache) isWatched(opKey string) bool {
	return len(c.watches[opKey]) > 0
}

func (c *Cache) notifyWatches(affected map[string]struct{}) {
	for _, key := range sortedKeys(c.watches) {
		for _, w := range slices.Clone(c.watches[key]) {
			if w.cancelled {
				continue
			}
			if _, ok := affected[key]; !ok {
				// trees only change along with the affected set; assembled
				// reads are valid as long as they stay cached
				if e := c.readCache[readKey{key, w.opts.Optimistic}]; e != nil {
					continue
				}
			}
			res := c.read(w.op, w.opts.Optimistic)
			if !resultChanged(w.last, res) {
				continue
			}
			w.last = res
			c.stats.Notifications++
			w.callback(res)
		}
	}
}

func resultChanged(prev, next *ReadResult) bool {
	if prev.Complete != next.Complete {
		return true
	}
	if sameMap(prev.Data, next.Data) {
		return false
	}
	if prev.Materialized || next.Materialized {
		return !cmp.Equal(prev.Data, next.Data)
	}
	return true
}

func sameMap(a, b map[string]any) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}
