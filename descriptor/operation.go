package descriptor

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

type OperationKind uint8

const (
	Query OperationKind = iota
	Mutation
	Subscription
	Fragment
)

func (k OperationKind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	case Fragment:
		return "fragment"
	default:
		return fmt.Sprintf("invalid operation kind %d", int(k))
	}
}

// RootKey is the identity of the root entity operations of this kind read
// from and write to. Fragments have no implicit root.
func (k OperationKind) RootKey() string {
	switch k {
	case Query:
		return "ROOT_QUERY"
	case Mutation:
		return "ROOT_MUTATION"
	case Subscription:
		return "ROOT_SUBSCRIPTION"
	case Fragment:
		return ""
	default:
		panic(fmt.Sprintf("unreachable: %v", k))
	}
}

func (k OperationKind) RootType() string {
	switch k {
	case Query:
		return "Query"
	case Mutation:
		return "Mutation"
	case Subscription:
		return "Subscription"
	case Fragment:
		return ""
	default:
		panic(fmt.Sprintf("unreachable: %v", k))
	}
}

var lastDocumentID atomic.Uint64

// Document is a named operation definition: its kind, its selections and the
// default values of its variables.
type Document struct {
	id         uint64
	name       string
	kind       OperationKind
	rootType   string
	selections *PossibleSelections
	defaults   map[string]any
}

func NewDocument(kind OperationKind, name string, sel *PossibleSelections, defaults map[string]any) *Document {
	if sel == nil {
		panic(fmt.Sprintf("NewDocument(%s): nil selections", name))
	}
	return &Document{
		id:         lastDocumentID.Add(1),
		name:       name,
		kind:       kind,
		rootType:   kind.RootType(),
		selections: sel,
		defaults:   defaults,
	}
}

// NewFragment defines a fragment document on the given type. Fragment
// operations need an explicit root key, see Document.OperationAt.
func NewFragment(name, typeName string, sel *PossibleSelections) *Document {
	doc := NewDocument(Fragment, name, sel, nil)
	doc.rootType = typeName
	return doc
}

func (d *Document) ID() uint64                      { return d.id }
func (d *Document) Name() string                    { return d.name }
func (d *Document) Kind() OperationKind             { return d.kind }
func (d *Document) RootType() string                { return d.rootType }
func (d *Document) Selections() *PossibleSelections { return d.selections }

func (d *Document) String() string {
	return d.kind.String() + " " + d.name
}

// Operation binds the document to variables at the document kind's root.
func (d *Document) Operation(vars map[string]any) *Operation {
	rootKey := d.kind.RootKey()
	if rootKey == "" {
		panic(fmt.Sprintf("%v: fragments need an explicit root key", d))
	}
	return d.OperationAt(rootKey, vars)
}

// OperationAt binds the document to variables with an explicit root entity
// key, which is how fragments are read and written.
func (d *Document) OperationAt(rootKey string, vars map[string]any) *Operation {
	if rootKey == "" {
		panic(fmt.Sprintf("%v: empty root key", d))
	}
	merged := make(map[string]any, len(d.defaults)+len(vars))
	maps.Copy(merged, d.defaults)
	maps.Copy(merged, vars)

	op := &Operation{
		doc:     d,
		vars:    merged,
		varsKey: canonicalJSON(merged),
		rootKey: rootKey,
	}
	h := xxhash.New()
	h.WriteString(strconv.FormatUint(d.id, 10))
	h.WriteString("\x00")
	h.WriteString(rootKey)
	h.WriteString("\x00")
	h.WriteString(op.varsKey)
	op.key = fmt.Sprintf("%s#%016x", d.name, h.Sum64())
	return op
}

// Operation is a document bound to variables (defaults applied) and a root
// entity. Operations with equal keys are interchangeable.
type Operation struct {
	doc     *Document
	vars    map[string]any
	varsKey string
	rootKey string
	key     string

	fieldKeys sync.Map // *FieldInfo -> string
}

func (op *Operation) Key() string                     { return op.key }
func (op *Operation) Document() *Document             { return op.doc }
func (op *Operation) Name() string                    { return op.doc.name }
func (op *Operation) Kind() OperationKind             { return op.doc.kind }
func (op *Operation) RootKey() string                 { return op.rootKey }
func (op *Operation) RootType() string                { return op.doc.rootType }
func (op *Operation) Selections() *PossibleSelections { return op.doc.selections }
func (op *Operation) Variables() map[string]any       { return op.vars }
func (op *Operation) VariablesKey() string            { return op.varsKey }
func (op *Operation) String() string                  { return op.key }

func (op *Operation) IsFragment() bool {
	return op.doc.kind == Fragment || op.rootKey != op.doc.kind.RootKey()
}

// RootFieldNames lists the schema names of fields selected at the root.
func (op *Operation) RootFieldNames() []string {
	sel := op.doc.selections.ForType(op.doc.rootType)
	names := make([]string, 0, sel.Len())
	for _, f := range sel.Fields() {
		if !slices.Contains(names, f.Name) {
			names = append(names, f.Name)
		}
	}
	return names
}

// IsIncluded evaluates the field's @skip and @include directives.
func (op *Operation) IsIncluded(f *FieldInfo) bool {
	if f.Skip != nil && op.condition(f.Skip) {
		return false
	}
	if f.Include != nil && !op.condition(f.Include) {
		return false
	}
	return true
}

func (op *Operation) condition(cond any) bool {
	switch c := cond.(type) {
	case bool:
		return c
	case Variable:
		v, _ := op.vars[string(c)].(bool)
		return v
	default:
		panic(fmt.Sprintf("invalid directive condition %T", cond))
	}
}

// ResolvedArgs returns field arguments with variables substituted.
func (op *Operation) ResolvedArgs(f *FieldInfo) map[string]any {
	if len(f.Args) == 0 {
		return nil
	}
	return resolveValue(f.Args, op.vars).(map[string]any)
}

// FieldKey identifies a field value independently of its alias: the schema
// name plus canonical resolved arguments. Two operations store the same
// logical value under equal field keys.
func (op *Operation) FieldKey(f *FieldInfo) string {
	if len(f.Args) == 0 {
		return f.Name
	}
	if k, ok := op.fieldKeys.Load(f); ok {
		return k.(string)
	}
	k := f.Name + "(" + canonicalJSON(op.ResolvedArgs(f)) + ")"
	op.fieldKeys.Store(f, k)
	return k
}

// Variable references an operation variable inside argument values and
// directive conditions.
type Variable string

func resolveValue(v any, vars map[string]any) any {
	switch v := v.(type) {
	case Variable:
		return vars[string(v)]
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = resolveValue(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, vars)
		}
		return out
	default:
		return v
	}
}

func canonicalJSON(v any) string {
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(raw)
}
