package pgxengine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// rowScanner materializes one pgx row, either into a fresh entity struct or
// into a scalar value.
type rowScanner func(rows pgx.Rows) (any, error)

func newRowScanner(mm *metamodel.Metamodel, entity *metamodel.EntityType, rows pgx.Rows) (rowScanner, error) {
	if entity == nil {
		return scanScalar, nil
	}

	// map result columns to attribute paths; unknown columns are skipped so
	// joined tables and foreign keys do not break scanning
	bindings := make([]*columnBinding, len(rows.FieldDescriptions()))
	byColumn := columnIndex(mm, entity)
	for i, fd := range rows.FieldDescriptions() {
		bindings[i] = byColumn[strings.ToLower(fd.Name)]
	}

	return func(rows pgx.Rows) (any, error) {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		out := reflect.New(entity.GoType)
		target := out.Elem()
		for i, b := range bindings {
			if b == nil || values[i] == nil {
				continue
			}
			if err := b.assign(target, values[i]); err != nil {
				return nil, fmt.Errorf("scanning %s: %w", entity.Name, err)
			}
		}
		return out.Interface(), nil
	}, nil
}

func scanScalar(rows pgx.Rows) (any, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("reading row: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// columnBinding locates a column's field: the embedded steps to walk, then
// the leaf attribute.
type columnBinding struct {
	steps []*metamodel.Attribute
	leaf  *metamodel.Attribute
}

func (b *columnBinding) assign(target reflect.Value, value any) error {
	for _, step := range b.steps {
		target = step.FieldValue(target)
	}
	field := b.leaf.FieldValue(target)

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(field.Type()):
		field.Set(rv)
	case rv.Type().ConvertibleTo(field.Type()):
		field.Set(rv.Convert(field.Type()))
	case field.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(field.Type().Elem()):
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(rv.Convert(field.Type().Elem()))
		field.Set(p)
	default:
		return fmt.Errorf("column %s: cannot store %s into %s", b.leaf.Column, rv.Type(), field.Type())
	}
	return nil
}

// columnIndex maps column names to bindings, flattening embedded attributes
// with their column prefix. Associations and collections have no column of
// their own and are not mapped.
func columnIndex(mm *metamodel.Metamodel, entity *metamodel.EntityType) map[string]*columnBinding {
	out := make(map[string]*columnBinding)
	addColumns(mm, out, entity, "", nil)
	return out
}

func addColumns(mm *metamodel.Metamodel, out map[string]*columnBinding, entity *metamodel.EntityType, prefix string, steps []*metamodel.Attribute) {
	for _, attr := range entity.Attributes {
		switch attr.Kind {
		case metamodel.Basic:
			out[prefix+attr.Column] = &columnBinding{steps: steps, leaf: attr}
		case metamodel.Embedded:
			if nested := mm.Entity(attr.TargetType); nested != nil {
				addColumns(mm, out, nested, prefix+attr.Column+"_",
					append(append([]*metamodel.Attribute{}, steps...), attr))
			}
		}
	}
}
