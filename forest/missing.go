package forest

import (
	"fmt"
	"strings"

	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/values"
)

// MissingField is a selected field absent from a tree.
type MissingField struct {
	Object *values.ObjectChunk
	Field  *descriptor.FieldInfo
	Path   []any
}

func (m MissingField) String() string {
	var buf strings.Builder
	for _, p := range m.Path {
		fmt.Fprintf(&buf, "%v.", p)
	}
	buf.WriteString(m.Field.DataKey())
	buf.WriteString(" of ")
	buf.WriteString(m.Object.Describe())
	return buf.String()
}

// FindMissingFields walks the tree and reports every selected, non-skipped
// field without a value, leaf fields included. Order is deterministic:
// depth-first, in selection order.
func FindMissingFields(t *IndexedTree) []MissingField {
	var out []MissingField
	var walk func(v values.Value, path []any)
	walk = func(v values.Value, path []any) {
		switch v := v.(type) {
		case *values.ObjectChunk:
			for _, f := range v.Selection().Fields() {
				if v.IsSkipped(f) {
					continue
				}
				if !v.HasValue(f) {
					out = append(out, MissingField{Object: v, Field: f, Path: clonePath(path)})
					continue
				}
				if f.IsComposite() && v.Data()[f.DataKey()] != nil {
					walk(v.FieldValue(f), append(path, f.DataKey()))
				}
			}
		case *values.CompositeListChunk:
			for i, item := range v.Data() {
				if item != nil {
					walk(v.Item(i), append(path, i))
				}
			}
		}
	}
	if t.Root != nil {
		walk(t.Root, nil)
	}
	return out
}

func clonePath(path []any) []any {
	if len(path) == 0 {
		return nil
	}
	return append([]any(nil), path...)
}
