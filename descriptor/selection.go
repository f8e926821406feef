// Package descriptor describes what a cached operation selects: documents,
// operations (a document bound to variables and a root entity), and
// type-polymorphic selections of fields.
//
// Query syntax is never parsed here. Selections are built in Go:
//
//	sel := descriptor.Select(
//		descriptor.Field("user").WithArgs(map[string]any{"id": descriptor.Variable("id")}).Select(
//			descriptor.Field("__typename"),
//			descriptor.Field("id"),
//			descriptor.Field("name").IncludeIf(descriptor.Variable("withName")),
//			descriptor.On("Admin", descriptor.Field("permissions")),
//		),
//	)
//
// All descriptors are immutable once built and may be shared between caches.
package descriptor

import "slices"

const TypenameField = "__typename"

// FieldInfo describes one selected field: its schema name, the data key it
// is stored under in results (the alias), arguments, @skip/@include
// conditions and, for composite fields, the nested selection.
type FieldInfo struct {
	Name      string
	Alias     string
	Args      map[string]any
	Skip      any // nil, bool or Variable
	Include   any // nil, bool or Variable
	Selection *PossibleSelections

	items []Item
}

// Field starts building a field selection.
func Field(name string) *FieldInfo {
	return &FieldInfo{Name: name}
}

func (f *FieldInfo) As(alias string) *FieldInfo {
	f.Alias = alias
	return f
}

func (f *FieldInfo) WithArgs(args map[string]any) *FieldInfo {
	f.Args = args
	return f
}

// SkipIf adds a @skip(if:) directive. The condition is a bool or a Variable.
func (f *FieldInfo) SkipIf(cond any) *FieldInfo {
	f.Skip = cond
	return f
}

// IncludeIf adds an @include(if:) directive. The condition is a bool or a Variable.
func (f *FieldInfo) IncludeIf(cond any) *FieldInfo {
	f.Include = cond
	return f
}

// Select turns the field into a composite field with the given sub-selection.
func (f *FieldInfo) Select(items ...Item) *FieldInfo {
	f.items = items
	f.Selection = Select(items...)
	return f
}

// DataKey is the key of the field's value in result objects.
func (f *FieldInfo) DataKey() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func (f *FieldInfo) IsComposite() bool {
	return f.Selection != nil
}

func (f *FieldInfo) HasArgs() bool {
	return len(f.Args) > 0
}

func (f *FieldInfo) IsConditional() bool {
	return f.Skip != nil || f.Include != nil
}

func (f *FieldInfo) String() string {
	if f.Alias != "" && f.Alias != f.Name {
		return f.Alias + ": " + f.Name
	}
	return f.Name
}

func (f *FieldInfo) addTo(b *selectionBuilder, typeCond string) {
	b.add(typeCond, f)
}

// Selection is the resolved field set for one concrete type.
type Selection struct {
	TypeName string

	fields    []*FieldInfo
	byDataKey map[string]*FieldInfo
	byName    map[string][]*FieldInfo
}

func newSelection(typeName string) *Selection {
	return &Selection{
		TypeName:  typeName,
		byDataKey: make(map[string]*FieldInfo),
		byName:    make(map[string][]*FieldInfo),
	}
}

// Fields returns selected fields in selection order. Callers must not modify
// the returned slice.
func (s *Selection) Fields() []*FieldInfo {
	return s.fields
}

func (s *Selection) Len() int {
	return len(s.fields)
}

func (s *Selection) FieldByDataKey(key string) *FieldInfo {
	return s.byDataKey[key]
}

// FieldsNamed returns every alias of the given schema field.
func (s *Selection) FieldsNamed(name string) []*FieldInfo {
	return s.byName[name]
}

func (s *Selection) HasField(name string) bool {
	return len(s.byName[name]) > 0
}

func (s *Selection) add(f *FieldInfo) {
	key := f.DataKey()
	if existing := s.byDataKey[key]; existing != nil {
		merged := mergeFields(existing, f)
		if merged == existing {
			return
		}
		i := slices.Index(s.fields, existing)
		s.fields[i] = merged
		s.byDataKey[key] = merged
		named := s.byName[f.Name]
		named[slices.Index(named, existing)] = merged
		return
	}
	s.fields = append(s.fields, f)
	s.byDataKey[key] = f
	s.byName[f.Name] = append(s.byName[f.Name], f)
}

func (s *Selection) clone(typeName string) *Selection {
	c := newSelection(typeName)
	for _, f := range s.fields {
		c.add(f)
	}
	return c
}

func mergeFields(a, b *FieldInfo) *FieldInfo {
	if a == b || b.Selection == nil {
		return a
	}
	if a.Selection == nil {
		return b
	}
	m := *a
	m.items = append(slices.Clip(a.items), b.items...)
	m.Selection = Select(m.items...)
	return &m
}

// PossibleSelections maps concrete type names to the field set selected for
// them. Fields selected without a type condition apply to every type.
type PossibleSelections struct {
	common *Selection
	byType map[string]*Selection
}

// ForType resolves the selection for the given concrete type name. An empty
// or unknown type name yields the fields common to all types.
func (ps *PossibleSelections) ForType(typeName string) *Selection {
	if sel := ps.byType[typeName]; sel != nil {
		return sel
	}
	return ps.common
}

func (ps *PossibleSelections) Common() *Selection {
	return ps.common
}

// TypeNames lists the type conditions with dedicated selections.
func (ps *PossibleSelections) TypeNames() []string {
	names := make([]string, 0, len(ps.byType))
	for t := range ps.byType {
		names = append(names, t)
	}
	slices.Sort(names)
	return names
}

// Item is anything that can appear inside Select: a *FieldInfo or a type
// condition created with On.
type Item interface {
	addTo(b *selectionBuilder, typeCond string)
}

type inlineFragment struct {
	typeName string
	items    []Item
}

// On applies items only to objects whose __typename is typeName, like an
// inline fragment with a type condition.
func On(typeName string, items ...Item) Item {
	return &inlineFragment{typeName, items}
}

// Nested type conditions narrow to the innermost one.
func (frag *inlineFragment) addTo(b *selectionBuilder, typeCond string) {
	for _, item := range frag.items {
		item.addTo(b, frag.typeName)
	}
}

type selectionBuilder struct {
	common  []*FieldInfo
	typed   map[string][]*FieldInfo
	typeSeq []string
}

func (b *selectionBuilder) add(typeCond string, f *FieldInfo) {
	if typeCond == "" {
		b.common = append(b.common, f)
		return
	}
	if b.typed == nil {
		b.typed = make(map[string][]*FieldInfo)
	}
	if _, ok := b.typed[typeCond]; !ok {
		b.typeSeq = append(b.typeSeq, typeCond)
	}
	b.typed[typeCond] = append(b.typed[typeCond], f)
}

// Select builds possible selections out of fields and type conditions.
func Select(items ...Item) *PossibleSelections {
	var b selectionBuilder
	for _, item := range items {
		item.addTo(&b, "")
	}

	common := newSelection("")
	for _, f := range b.common {
		common.add(f)
	}
	ps := &PossibleSelections{
		common: common,
		byType: make(map[string]*Selection, len(b.typed)),
	}
	for _, typeName := range b.typeSeq {
		sel := common.clone(typeName)
		for _, f := range b.typed[typeName] {
			sel.add(f)
		}
		ps.byType[typeName] = sel
	}
	return ps
}
