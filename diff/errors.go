package diff

import (
	"fmt"
	"strings"
)

type ErrorKind uint8

const (
	// MissingModelFields: the incoming data lacks fields its selection
	// expects. Recoverable; those fields are not diffed.
	MissingModelFields ErrorKind = iota + 1
	// MissingBaseFields: existing data lacks fields its selection expects.
	MissingBaseFields
	// MissingModelValue: a value was diffed against a model with no value.
	MissingModelValue
	// FirstDiffNodeException: diffing one node panicked. Reported once per
	// diff pass; other nodes are still diffed.
	FirstDiffNodeException
)

func (k ErrorKind) String() string {
	switch k {
	case MissingModelFields:
		return "MissingModelFields"
	case MissingBaseFields:
		return "MissingBaseFields"
	case MissingModelValue:
		return "MissingModelValue"
	case FirstDiffNodeException:
		return "FirstDiffNodeException"
	default:
		return fmt.Sprintf("invalid diff error kind %d", int(k))
	}
}

type Error struct {
	Kind    ErrorKind
	NodeKey string
	Fields  []string
	Err     error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.String())
	if e.NodeKey != "" {
		buf.WriteString(" at ")
		buf.WriteString(e.NodeKey)
	}
	if len(e.Fields) > 0 {
		buf.WriteString(": ")
		buf.WriteString(strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
