package gqlcache

import (
	"fmt"

	"github.com/andreyvit/gqlcache/descriptor"
)

type (
	Change struct {
		op           Op
		operation    *descriptor.Operation
		nodeKey      string
		layer        string
		changedOps   []string
		changedNodes []string
		diffErr      error
	}

	ChangeFlags uint64

	Op int
)

const (
	OpNone   Op = 0
	OpWrite  Op = 1
	OpModify Op = 2
	OpEvict  Op = 3
)

const (
	ChangeFlagWrites ChangeFlags = 1 << iota
	ChangeFlagModifications
	ChangeFlagEvictions
	// ChangeFlagUnchanged also delivers changes that affected no tree.
	ChangeFlagUnchanged

	ChangeFlagsAll = ChangeFlagWrites | ChangeFlagModifications | ChangeFlagEvictions
)

func (chg *Change) Op() Op {
	return chg.op
}

// Operation is the written or evicted operation; nil for OpModify.
func (chg *Change) Operation() *descriptor.Operation {
	return chg.operation
}

// NodeKey is the modified entity of an OpModify.
func (chg *Change) NodeKey() string {
	return chg.nodeKey
}

// Layer is the tag of the optimistic layer written to, or "" for the
// confirmed forest.
func (chg *Change) Layer() string {
	return chg.layer
}

func (chg *Change) IsOptimistic() bool {
	return chg.layer != ""
}

// ChangedOperations lists keys of operations whose trees were replaced.
func (chg *Change) ChangedOperations() []string {
	return chg.changedOps
}

// ChangedNodes lists entities whose data differs after the change.
func (chg *Change) ChangedNodes() []string {
	return chg.changedNodes
}

func (chg *Change) IsEmpty() bool {
	return len(chg.changedOps) == 0 && len(chg.changedNodes) == 0
}

// DiffErr combines non-fatal problems found while diffing a write, like
// fields missing from the written result.
func (chg *Change) DiffErr() error {
	return chg.diffErr
}

func (chg *Change) String() string {
	switch chg.op {
	case OpModify:
		return fmt.Sprintf("%v %s (%d ops)", chg.op, chg.nodeKey, len(chg.changedOps))
	default:
		return fmt.Sprintf("%v %v (%d ops, %d nodes)", chg.op, chg.operation, len(chg.changedOps), len(chg.changedNodes))
	}
}

func (v ChangeFlags) Contains(f ChangeFlags) bool {
	return (v & f) == f
}
func (v ChangeFlags) ContainsAny(f ChangeFlags) bool {
	return (v & f) != 0
}

func (v ChangeFlags) accepts(chg *Change) bool {
	if chg.IsEmpty() && !v.Contains(ChangeFlagUnchanged) {
		return false
	}
	switch chg.op {
	case OpWrite:
		return v.Contains(ChangeFlagWrites)
	case OpModify:
		return v.Contains(ChangeFlagModifications)
	case OpEvict:
		return v.Contains(ChangeFlagEvictions)
	default:
		return false
	}
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpWrite:
		return "write"
	case OpModify:
		return "modify"
	case OpEvict:
		return "evict"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
