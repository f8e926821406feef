// Package forest indexes operation results into trees of chunks, diffs
// incoming trees against the forest and applies differences to existing
// trees copy-on-write.
//
// Trees are immutable once built. Updating a tree produces a new tree that
// shares every untouched chunk (and raw sub-value) with its predecessor, so
// consumers can skip work by comparing references.
package forest

import (
	"fmt"
	"log/slog"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/diff"
	"github.com/andreyvit/gqlcache/values"
)

// KeyFunc computes the identity key of a raw object whose concrete type is
// typeName. Returning false leaves the object unidentified.
type KeyFunc func(data map[string]any, typeName string, sel *descriptor.Selection) (string, bool)

// DefaultKeyFunc identifies objects carrying both __typename and id as
// "Type:id".
func DefaultKeyFunc(data map[string]any, typeName string, sel *descriptor.Selection) (string, bool) {
	if typeName == "" {
		return "", false
	}
	id, ok := data["id"]
	if !ok || id == nil {
		return "", false
	}
	return typeName + ":" + fmt.Sprint(id), true
}

type Env struct {
	KeyFunc     KeyFunc
	ListItemKey func(item values.ObjectValue, index int) (string, bool)
	Logger      *slog.Logger
	Verbose     bool

	generation uint64
}

func (env *Env) key(data map[string]any, typeName string, sel *descriptor.Selection) string {
	kf := env.KeyFunc
	if kf == nil {
		kf = DefaultKeyFunc
	}
	if k, ok := kf(data, typeName, sel); ok {
		return k
	}
	return ""
}

func (env *Env) nextGeneration() uint64 {
	env.generation++
	return env.generation
}

func (env *Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.Default()
	}
	return env.Logger
}

// DiffEnv returns the differ configuration derived from env.
func (env *Env) DiffEnv() *diff.Env {
	return &diff.Env{
		ListItemKey: env.ListItemKey,
		Logger:      env.Logger,
	}
}

func typeNameOf(data map[string]any) string {
	s, _ := data[descriptor.TypenameField].(string)
	return s
}
