package gqlcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/forest"
)

var ErrNotFound = errors.New("not found")

type OperationError struct {
	Operation *descriptor.Operation
	Msg       string
	Err       error
}

func opErrf(op *descriptor.Operation, err error, format string, args ...any) error {
	return &OperationError{op, fmt.Sprintf(format, args...), err}
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Error() string {
	var buf strings.Builder
	if e.Operation != nil {
		buf.WriteString(e.Operation.Key())
	} else {
		buf.WriteString("gqlcache")
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// MissingFieldsError is returned by strict reads of incomplete data.
type MissingFieldsError struct {
	Operation *descriptor.Operation
	Missing   []forest.MissingField
}

func missingErrf(op *descriptor.Operation, missing []forest.MissingField) error {
	return &MissingFieldsError{op, missing}
}

func (e *MissingFieldsError) Error() string {
	const maxListed = 5
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: %d missing fields: ", e.Operation.Key(), len(e.Missing))
	for i, m := range e.Missing {
		if i == maxListed {
			fmt.Fprintf(&buf, ", ... (%d more)", len(e.Missing)-maxListed)
			break
		}
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(m.String())
	}
	return buf.String()
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrNotFound && len(e.Missing) > 0
}
