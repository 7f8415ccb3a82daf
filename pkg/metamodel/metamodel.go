// Package metamodel reports entity metadata to the query pipeline: managed
// types, their attributes, association kind and optionality, and identifier
// fields. The default implementation builds the model from struct reflection
// and `orm` field tags.
package metamodel

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Kind classifies an attribute.
type Kind int

const (
	Basic Kind = iota
	Embedded
	OneToOne
	ManyToOne
	OneToMany
	ManyToMany
	ElementCollection
)

func (k Kind) String() string {
	switch k {
	case Embedded:
		return "embedded"
	case OneToOne:
		return "oneToOne"
	case ManyToOne:
		return "manyToOne"
	case OneToMany:
		return "oneToMany"
	case ManyToMany:
		return "manyToMany"
	case ElementCollection:
		return "elementCollection"
	default:
		return "basic"
	}
}

// IsToOne reports whether the kind is a singular association.
func (k Kind) IsToOne() bool {
	return k == OneToOne || k == ManyToOne
}

// Attribute is one mapped field of an entity.
type Attribute struct {
	Name   string
	Column string
	Kind   Kind

	// Optional marks a nullable association. An inner join on an optional
	// association would silently drop rows, so optional associations force
	// left joins during path navigation.
	Optional bool

	// MappedBy names the owning attribute for the inverse side of a
	// one-to-one association.
	MappedBy string

	// ID marks an identifier attribute.
	ID bool

	// Type is the declared field type; TargetType is the element type for
	// associations and collections.
	Type       reflect.Type
	TargetType reflect.Type

	fieldIndex []int
}

// IsCollection reports whether the attribute is plural.
func (a *Attribute) IsCollection() bool {
	return a.Kind == OneToMany || a.Kind == ManyToMany || a.Kind == ElementCollection
}

// IsAssociation reports whether the attribute navigates to another managed
// type or element collection.
func (a *Attribute) IsAssociation() bool {
	return a.Kind != Basic && a.Kind != Embedded
}

// IsString reports whether the attribute holds a string value.
func (a *Attribute) IsString() bool {
	return a.Type.Kind() == reflect.String
}

// Value extracts the attribute value from an entity instance.
func (a *Attribute) Value(entity any) any {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.FieldByIndex(a.fieldIndex).Interface()
}

// FieldValue returns the attribute's field within the given struct value.
// The result is settable when v is.
func (a *Attribute) FieldValue(v reflect.Value) reflect.Value {
	return v.FieldByIndex(a.fieldIndex)
}

// EntityType is the metadata of one managed entity.
type EntityType struct {
	Name       string
	Table      string
	GoType     reflect.Type
	Attributes []*Attribute

	byName map[string]*Attribute
	ids    []*Attribute
}

// Attribute returns the attribute with the given name, or nil.
func (e *EntityType) Attribute(name string) *Attribute {
	return e.byName[name]
}

// IDAttributes returns the identifier attributes of the entity.
func (e *EntityType) IDAttributes() []*Attribute {
	return e.ids
}

// HasSingleID reports whether the entity has exactly one identifier attribute.
func (e *EntityType) HasSingleID() bool {
	return len(e.ids) == 1
}

// Metamodel is the registry of managed entity types.
type Metamodel struct {
	byType map[reflect.Type]*EntityType
	byName map[string]*EntityType
}

// New creates an empty metamodel.
func New() *Metamodel {
	return &Metamodel{
		byType: make(map[reflect.Type]*EntityType),
		byName: make(map[string]*EntityType),
	}
}

// MustRegister registers the entities and panics on mapping errors. Intended
// for bootstrap code and tests.
func (m *Metamodel) MustRegister(entities ...any) *Metamodel {
	for _, e := range entities {
		if _, err := m.Register(e); err != nil {
			panic(err)
		}
	}
	return m
}

// Register builds and stores the EntityType for the given entity struct (or
// pointer to struct). Registering the same type twice returns the existing
// metadata.
func (m *Metamodel) Register(entity any) (*EntityType, error) {
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct, got %s", t)
	}
	if existing, ok := m.byType[t]; ok {
		return existing, nil
	}

	et := &EntityType{
		Name:   t.Name(),
		Table:  inflection.Plural(toSnake(t.Name())),
		GoType: t,
		byName: make(map[string]*Attribute),
	}
	// register before walking fields so self-references resolve
	m.byType[t] = et
	m.byName[et.Name] = et

	if err := m.addFields(et, t, nil); err != nil {
		delete(m.byType, t)
		delete(m.byName, et.Name)
		return nil, err
	}
	if len(et.ids) == 0 {
		if id := et.byName["id"]; id != nil {
			id.ID = true
			et.ids = append(et.ids, id)
		}
	}
	return et, nil
}

func (m *Metamodel) addFields(et *EntityType, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("orm")
		if tag == "-" {
			continue
		}

		attr, err := m.buildAttribute(f, tag, append(append([]int{}, index...), i))
		if err != nil {
			return fmt.Errorf("entity %s, field %s: %w", et.Name, f.Name, err)
		}
		et.Attributes = append(et.Attributes, attr)
		et.byName[attr.Name] = attr
		if attr.ID {
			et.ids = append(et.ids, attr)
		}
	}
	return nil
}

func (m *Metamodel) buildAttribute(f reflect.StructField, tag string, index []int) (*Attribute, error) {
	attr := &Attribute{
		Name:       decapitalize(f.Name),
		Column:     toSnake(f.Name),
		Type:       f.Type,
		fieldIndex: index,
	}

	attr.Kind = defaultKind(f.Type)
	attr.Optional = f.Type.Kind() == reflect.Pointer
	attr.TargetType = elemType(f.Type)

	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "":
		case opt == "id":
			attr.ID = true
		case opt == "optional":
			attr.Optional = true
		case opt == "required":
			attr.Optional = false
		case opt == "oneToOne":
			attr.Kind = OneToOne
		case opt == "manyToOne":
			attr.Kind = ManyToOne
		case opt == "oneToMany":
			attr.Kind = OneToMany
		case opt == "manyToMany":
			attr.Kind = ManyToMany
		case opt == "elementCollection":
			attr.Kind = ElementCollection
		case opt == "embedded":
			attr.Kind = Embedded
		case strings.HasPrefix(opt, "column="):
			attr.Column = strings.TrimPrefix(opt, "column=")
		case strings.HasPrefix(opt, "mappedBy="):
			attr.MappedBy = strings.TrimPrefix(opt, "mappedBy=")
		default:
			return nil, fmt.Errorf("unknown orm tag option %q", opt)
		}
	}

	if (attr.IsAssociation() || attr.Kind == Embedded) && attr.TargetType.Kind() == reflect.Struct {
		if _, err := m.Register(reflect.New(attr.TargetType).Elem().Interface()); err != nil {
			return nil, err
		}
	}
	return attr, nil
}

// Entity returns the metadata for the given Go type, or nil when the type is
// not managed.
func (m *Metamodel) Entity(t reflect.Type) *EntityType {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return m.byType[t]
}

// EntityOf returns the metadata for the dynamic type of the given value.
func (m *Metamodel) EntityOf(entity any) *EntityType {
	return m.Entity(reflect.TypeOf(entity))
}

// EntityByName returns the metadata for the given entity name, or nil.
func (m *Metamodel) EntityByName(name string) *EntityType {
	return m.byName[name]
}

// IsManaged reports whether the type was registered as an entity.
func (m *Metamodel) IsManaged(t reflect.Type) bool {
	return m.Entity(t) != nil
}

// defaultKind infers the attribute kind from the field type when no tag is
// given: struct-typed fields map to associations, slices of structs to
// one-to-many, slices of scalars to element collections.
func defaultKind(t reflect.Type) Kind {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return Basic
		}
		return ManyToOne
	case reflect.Slice, reflect.Array:
		e := t.Elem()
		for e.Kind() == reflect.Pointer {
			e = e.Elem()
		}
		if e.Kind() == reflect.Struct && e != reflect.TypeOf(time.Time{}) {
			return OneToMany
		}
		if e.Kind() == reflect.Uint8 {
			return Basic // []byte
		}
		return ElementCollection
	default:
		return Basic
	}
}

func elemType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	return t
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(s[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decapitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if len(r) > 1 && unicode.IsUpper(r[0]) && unicode.IsUpper(r[1]) {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
