package forest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hashicorp/go-multierror"

	"github.com/andreyvit/gqlcache/diff"
	"github.com/andreyvit/gqlcache/values"
)

// TreeDifference is the result of diffing an incoming tree against a view.
type TreeDifference struct {
	// NodeDifference holds dirty differences by node key.
	NodeDifference map[string]*diff.ObjectDifference
	// NewNodes lists nodes of the incoming tree not present in the view.
	NewNodes []string
	Errors   []*diff.Error
}

func (td *TreeDifference) IsEmpty() bool {
	return len(td.NodeDifference) == 0 && len(td.NewNodes) == 0
}

// Err combines diff errors, or returns nil.
func (td *TreeDifference) Err() error {
	var result *multierror.Error
	for _, e := range td.Errors {
		result = multierror.Append(result, e)
	}
	return result.ErrorOrNil()
}

// DiffTree diffs every node of tree against the chunks of the same node in
// the view. A panic while diffing a node is reported once per call as
// FirstDiffNodeException; the remaining nodes are still diffed.
func DiffTree(view View, tree *IndexedTree, env *Env) *TreeDifference {
	td := &TreeDifference{
		NodeDifference: make(map[string]*diff.ObjectDifference),
	}
	denv := env.DiffEnv()
	var excepted bool
	for _, key := range tree.NodeKeys() {
		base := view.NodeChunks(key)
		if len(base) == 0 {
			td.NewNodes = append(td.NewNodes, key)
			continue
		}
		model := values.NewObjectAggregate(tree.Nodes[key]...)
		st, err := diffNode(values.NewObjectAggregate(base...), model, denv)
		if err != nil {
			if !excepted {
				excepted = true
				td.Errors = append(td.Errors, &diff.Error{Kind: diff.FirstDiffNodeException, NodeKey: key, Err: err})
				env.logger().LogAttrs(context.Background(), slog.LevelError, "diff failed", slog.String("op", tree.Operation.Key()), slog.String("node", key), slog.Any("err", err))
			}
			continue
		}
		td.Errors = append(td.Errors, st.Errors()...)
		if st.IsDirty() {
			td.NodeDifference[key] = st
		}
	}
	if len(td.Errors) > 0 {
		env.logger().LogAttrs(context.Background(), slog.LevelWarn, "diff errors", slog.String("op", tree.Operation.Key()), slog.Any("err", td.Err()))
	}
	return td
}

func diffNode(base, model values.ObjectValue, env *diff.Env) (st *diff.ObjectDifference, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n\n%s", p, debug.Stack())
		}
	}()
	return diff.DiffObject(base, model, env, nil), nil
}

// ResolveAffectedOperations maps the node differences to the operations
// visible in the view that reference those nodes: operation key -> node key
// -> difference.
func ResolveAffectedOperations(view View, td *TreeDifference) map[string]map[string]*diff.ObjectDifference {
	out := make(map[string]map[string]*diff.ObjectDifference)
	for key, d := range td.NodeDifference {
		for _, opKey := range view.Operations(key) {
			m := out[opKey]
			if m == nil {
				m = make(map[string]*diff.ObjectDifference)
				out[opKey] = m
			}
			m[key] = d
		}
	}
	return out
}
