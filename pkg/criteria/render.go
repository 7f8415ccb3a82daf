package criteria

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/repoquery/pkg/parttree"
)

// Render writes the query as entity-level text with named placeholders,
// e.g. "select u from User u where u.name = :name". The where predicate may
// be overridden so an instantiated query renders its null-rewritten form;
// pass nil to render the template's own predicate.
func Render(q *Query, whereOverride Predicate) (string, error) {
	var b strings.Builder

	writeSelection(&b, q)

	b.WriteString(" from ")
	b.WriteString(q.Root.EntityType().Name)
	b.WriteByte(' ')
	b.WriteString(q.Root.Alias())
	writeJoins(&b, q.Root)

	where := q.Where
	if whereOverride != nil {
		where = whereOverride
	}
	if where != nil {
		b.WriteString(" where ")
		if err := writePredicate(&b, where); err != nil {
			return "", err
		}
	}

	if len(q.Orders) > 0 {
		b.WriteString(" order by ")
		for i, o := range q.Orders {
			if i > 0 {
				b.WriteString(", ")
			}
			ref := o.Path.String()
			if o.IgnoreCase {
				ref = "lower(" + ref + ")"
			}
			b.WriteString(ref)
			if o.Descending {
				b.WriteString(" desc")
			} else {
				b.WriteString(" asc")
			}
		}
	}
	return b.String(), nil
}

func writeSelection(b *strings.Builder, q *Query) {
	alias := q.Root.Alias()
	switch q.Selection {
	case SelectCount:
		if q.Distinct {
			fmt.Fprintf(b, "select count(distinct %s)", alias)
		} else {
			fmt.Fprintf(b, "select count(%s)", alias)
		}
	case SelectIDs:
		b.WriteString("select ")
		ids := q.Root.EntityType().IDAttributes()
		if len(ids) == 0 {
			b.WriteString(alias)
			return
		}
		for i, id := range ids {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(alias)
			b.WriteByte('.')
			b.WriteString(id.Name)
		}
	default:
		if q.Distinct {
			b.WriteString("select distinct ")
		} else {
			b.WriteString("select ")
		}
		b.WriteString(alias)
	}
}

func writeJoins(b *strings.Builder, source From) {
	for _, j := range source.Joins() {
		if j.IsOuter() {
			b.WriteString(" left join ")
		} else {
			b.WriteString(" join ")
		}
		b.WriteString(j.PathFromParent())
		b.WriteByte(' ')
		b.WriteString(j.Alias())
		writeJoins(b, j)
	}
}

func writePredicate(b *strings.Builder, p Predicate) error {
	switch t := p.(type) {
	case *Comparison:
		b.WriteString(caseRef(t.Path, t.IgnoreCase))
		b.WriteByte(' ')
		b.WriteString(t.Op.String())
		b.WriteString(" :")
		b.WriteString(t.Value.Metadata.Name)

	case *Between:
		b.WriteString(t.Path.String())
		b.WriteString(" between :")
		b.WriteString(t.Lower.Metadata.Name)
		b.WriteString(" and :")
		b.WriteString(t.Upper.Metadata.Name)

	case *Null:
		b.WriteString(t.Path.String())
		if t.Negated {
			b.WriteString(" is not null")
		} else {
			b.WriteString(" is null")
		}

	case *Empty:
		b.WriteString(t.Path.String())
		if t.Negated {
			b.WriteString(" is not empty")
		} else {
			b.WriteString(" is empty")
		}

	case *Like:
		b.WriteString(caseRef(t.Path, t.IgnoreCase))
		if t.Negated {
			b.WriteString(" not like :")
		} else {
			b.WriteString(" like :")
		}
		b.WriteString(t.Value.Metadata.Name)
		if t.Escape != 0 && generatesWildcards(t.Value.Metadata.Type) {
			fmt.Fprintf(b, " escape '%c'", t.Escape)
		}

	case *In:
		b.WriteString(caseRef(t.Path, t.IgnoreCase))
		if t.Negated {
			b.WriteString(" not in (:")
		} else {
			b.WriteString(" in (:")
		}
		b.WriteString(t.Value.Metadata.Name)
		b.WriteByte(')')

	case *Member:
		b.WriteByte(':')
		b.WriteString(t.Value.Metadata.Name)
		if t.Negated {
			b.WriteString(" not member of ")
		} else {
			b.WriteString(" member of ")
		}
		b.WriteString(t.Path.String())

	case *IsTrue:
		b.WriteString(t.Path.String())
		if t.Value {
			b.WriteString(" = true")
		} else {
			b.WriteString(" = false")
		}

	case *And:
		return writeComposite(b, t.Predicates, " and ")

	case *Or:
		return writeComposite(b, t.Predicates, " or ")

	default:
		return fmt.Errorf("unknown predicate %T", p)
	}
	return nil
}

func writeComposite(b *strings.Builder, children []Predicate, sep string) error {
	for i, child := range children {
		if i > 0 {
			b.WriteString(sep)
		}
		_, composite := child.(*And)
		if !composite {
			_, composite = child.(*Or)
		}
		if composite {
			b.WriteByte('(')
		}
		if err := writePredicate(b, child); err != nil {
			return err
		}
		if composite {
			b.WriteByte(')')
		}
	}
	return nil
}

func caseRef(p *Path, ignoreCase bool) string {
	if ignoreCase {
		return "lower(" + p.String() + ")"
	}
	return p.String()
}

// generatesWildcards reports whether bound values of this part type are
// wrapped in wildcards at preparation time and therefore need an escape
// clause.
func generatesWildcards(t parttree.Type) bool {
	switch t {
	case parttree.StartingWith, parttree.EndingWith, parttree.Containing, parttree.NotContaining:
		return true
	default:
		return false
	}
}
