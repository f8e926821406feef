// Package diff computes normalized differences between two versions of an
// entity. A difference is keyed by logical field keys and list positions,
// not by chunk identity, so a difference computed against one chunk of an
// entity applies to every other chunk of it, in any tree.
package diff

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/andreyvit/gqlcache/values"
)

type Kind uint8

const (
	KindReplacement Kind = iota + 1
	KindFiller
	KindObjectDifference
	KindCompositeListDifference
)

func (k Kind) String() string {
	switch k {
	case KindReplacement:
		return "Replacement"
	case KindFiller:
		return "Filler"
	case KindObjectDifference:
		return "ObjectDifference"
	case KindCompositeListDifference:
		return "CompositeListDifference"
	default:
		return fmt.Sprintf("invalid difference kind %d", int(k))
	}
}

// ValueDifference is one of *Replacement, *Filler, *ObjectDifference,
// *CompositeListDifference.
type ValueDifference interface {
	DifferenceKind() Kind
	IsDirty() bool
}

// Env configures the differ.
type Env struct {
	// ListItemKey keys list items that are not nodes, e.g. connection edges.
	// Returning false leaves the item unkeyed (matched by position).
	ListItemKey func(item values.ObjectValue, index int) (string, bool)

	Logger *slog.Logger
}

// Replacement replaces a value wholesale.
type Replacement struct {
	OldValue values.Value
	NewValue values.Value
}

func (*Replacement) DifferenceKind() Kind { return KindReplacement }
func (*Replacement) IsDirty() bool        { return true }

// Filler provides a value where the base had none.
type Filler struct {
	NewValue values.Value
}

func (*Filler) DifferenceKind() Kind { return KindFiller }
func (*Filler) IsDirty() bool        { return true }

// ObjectDifference describes field-level changes of one object. It doubles
// as the resumable diff state: fields whose base value was not available yet
// stay queued.
type ObjectDifference struct {
	queue      []string
	pending    map[string]values.Value
	fieldState map[string]ValueDifference
	dirty      map[string]struct{}
	baseMiss   map[string]struct{}
	errors     []*Error
}

func NewObjectDifference() *ObjectDifference {
	return &ObjectDifference{
		pending:    make(map[string]values.Value),
		fieldState: make(map[string]ValueDifference),
		dirty:      make(map[string]struct{}),
	}
}

func (*ObjectDifference) DifferenceKind() Kind { return KindObjectDifference }

// IsDirty reports whether at least one field changed.
func (d *ObjectDifference) IsDirty() bool {
	return len(d.dirty) > 0
}

// IsComplete reports whether every enqueued field has been resolved.
func (d *ObjectDifference) IsComplete() bool {
	return len(d.queue) == 0
}

// FieldKeys lists fields with a difference, sorted.
func (d *ObjectDifference) FieldKeys() []string {
	keys := make([]string, 0, len(d.fieldState))
	for k, fd := range d.fieldState {
		if fd.IsDirty() {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func (d *ObjectDifference) FieldDifference(fieldKey string) ValueDifference {
	fd := d.fieldState[fieldKey]
	if fd == nil || !fd.IsDirty() {
		return nil
	}
	return fd
}

// DirtyFields lists dirty field keys, sorted.
func (d *ObjectDifference) DirtyFields() []string {
	keys := make([]string, 0, len(d.dirty))
	for k := range d.dirty {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PendingFields lists fields still waiting for base data.
func (d *ObjectDifference) PendingFields() []string {
	return slices.Clone(d.queue)
}

func (d *ObjectDifference) Errors() []*Error {
	return d.errors
}

// SetFieldDifference records a difference computed outside of the differ,
// e.g. a direct field modification.
func (d *ObjectDifference) SetFieldDifference(fieldKey string, fd ValueDifference) {
	d.fieldState[fieldKey] = fd
	if fd.IsDirty() {
		d.dirty[fieldKey] = struct{}{}
	}
}

func (d *ObjectDifference) isQueued(key string) bool {
	_, ok := d.pending[key]
	return ok
}

func (d *ObjectDifference) isResolved(key string) bool {
	if d.isQueued(key) {
		return false
	}
	_, ok := d.fieldState[key]
	return ok
}

func (d *ObjectDifference) enqueue(key string, model values.Value) {
	d.queue = append(d.queue, key)
	d.pending[key] = model
}

func (d *ObjectDifference) resolve(key string, fd ValueDifference) {
	delete(d.pending, key)
	if fd == nil {
		if _, ok := d.fieldState[key]; !ok {
			d.fieldState[key] = noDifference{}
		}
		return
	}
	d.fieldState[key] = fd
	if fd.IsDirty() {
		d.dirty[key] = struct{}{}
	}
}

// noDifference marks resolved fields that did not change.
type noDifference struct{}

func (noDifference) DifferenceKind() Kind { return 0 }
func (noDifference) IsDirty() bool        { return false }

// LayoutEntry is one position of a new list layout: an index into the old
// list, an explicit null, or a new value with no positional match.
type LayoutEntry struct {
	Index int
	Value values.Value
}

func Keep(index int) LayoutEntry       { return LayoutEntry{Index: index} }
func Null() LayoutEntry                { return LayoutEntry{Index: -1} }
func New(v values.Value) LayoutEntry   { return LayoutEntry{Index: -1, Value: v} }
func (e LayoutEntry) IsIndex() bool    { return e.Index >= 0 }
func (e LayoutEntry) IsNull() bool     { return e.Index < 0 && e.Value == nil }
func (e LayoutEntry) IsNewValue() bool { return e.Index < 0 && e.Value != nil }

func (e LayoutEntry) String() string {
	switch {
	case e.IsIndex():
		return fmt.Sprint(e.Index)
	case e.IsNull():
		return "null"
	default:
		return "new"
	}
}

// CompositeListDifference describes item-level changes of a list plus an
// optional layout. Item differences address items by their index in the old
// list; the layout, applied last, maps new positions to old indexes.
type CompositeListDifference struct {
	layout      []LayoutEntry
	deletedKeys []string
	baseLen     int
	model       values.ListValue

	queue      []int
	pending    map[int]values.Value
	itemState  map[int]ValueDifference
	dirtyItems map[int]struct{}
}

func newCompositeListDifference() *CompositeListDifference {
	return &CompositeListDifference{
		pending:    make(map[int]values.Value),
		itemState:  make(map[int]ValueDifference),
		dirtyItems: make(map[int]struct{}),
	}
}

func (*CompositeListDifference) DifferenceKind() Kind { return KindCompositeListDifference }

func (d *CompositeListDifference) IsDirty() bool {
	return d.layout != nil || len(d.dirtyItems) > 0
}

func (d *CompositeListDifference) IsComplete() bool {
	return len(d.queue) == 0
}

// Layout returns nil when no item moved, appeared or disappeared.
func (d *CompositeListDifference) Layout() []LayoutEntry {
	return d.layout
}

// BaseLen is the length of the list the difference was computed against.
// Item indexes and layout entries are only meaningful for lists of this
// length.
func (d *CompositeListDifference) BaseLen() int {
	return d.baseLen
}

// Model is the new version of the list.
func (d *CompositeListDifference) Model() values.ListValue {
	return d.model
}

// DeletedKeys lists keys of keyed items present in the old list and absent
// from the new layout.
func (d *CompositeListDifference) DeletedKeys() []string {
	return d.deletedKeys
}

// ItemIndexes lists old-list indexes with a dirty item difference, sorted.
// Indexes past the end of the old list are appended items.
func (d *CompositeListDifference) ItemIndexes() []int {
	idx := make([]int, 0, len(d.dirtyItems))
	for i := range d.dirtyItems {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx
}

func (d *CompositeListDifference) ItemDifference(i int) ValueDifference {
	fd := d.itemState[i]
	if fd == nil || !fd.IsDirty() {
		return nil
	}
	return fd
}

func (d *CompositeListDifference) enqueue(i int, model values.Value) {
	d.queue = append(d.queue, i)
	d.pending[i] = model
}

func (d *CompositeListDifference) resolve(i int, fd ValueDifference) {
	delete(d.pending, i)
	if fd == nil {
		if _, ok := d.itemState[i]; !ok {
			d.itemState[i] = noDifference{}
		}
		return
	}
	d.itemState[i] = fd
	if fd.IsDirty() {
		d.dirtyItems[i] = struct{}{}
	}
}
