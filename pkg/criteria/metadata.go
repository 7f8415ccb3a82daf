package criteria

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/parttree"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

// ParameterMetadata describes one bind placeholder of a criteria query: the
// method parameter that feeds it, the placeholder name used in rendered
// text, and how the raw argument is prepared before binding.
type ParameterMetadata struct {
	Parameter *binding.Parameter

	// Name is the unique placeholder name inside the rendered query.
	Name string

	// Position is the 1-based bindable position of the parameter.
	Position int

	Type       parttree.Type
	IgnoreCase bool

	// CollectionLeaf marks a binding against a plural attribute, where the
	// value is a member candidate instead of a pattern.
	CollectionLeaf bool

	Escape rune
}

// IsNullEquality reports whether a nil argument turns this placeholder's
// equality into an IS [NOT] NULL restriction instead of a comparison.
func (m *ParameterMetadata) IsNullEquality(value any) bool {
	return value == nil &&
		(m.Type == parttree.SimpleProperty || m.Type == parttree.NegatingSimpleProperty)
}

// Prepare transforms a raw argument into the value actually bound: LIKE
// arguments are escaped and wildcard-wrapped, IN arguments flattened, and
// case-insensitive string arguments lowercased.
func (m *ParameterMetadata) Prepare(value any) any {
	if value == nil {
		return nil
	}

	switch m.Type {
	case parttree.StartingWith:
		value = sqlparse.EscapeLikeWildcards(fmt.Sprint(value), m.Escape) + "%"
	case parttree.EndingWith:
		value = "%" + sqlparse.EscapeLikeWildcards(fmt.Sprint(value), m.Escape)
	case parttree.Containing, parttree.NotContaining:
		if !m.CollectionLeaf {
			value = "%" + sqlparse.EscapeLikeWildcards(fmt.Sprint(value), m.Escape) + "%"
		}
	case parttree.In, parttree.NotIn:
		value = sqlparse.FlattenToSlice(value)
	}

	if m.IgnoreCase {
		switch v := value.(type) {
		case string:
			value = strings.ToLower(v)
		case []any:
			for i, e := range v {
				if s, ok := e.(string); ok {
					v[i] = strings.ToLower(s)
				}
			}
		}
	}
	return value
}

// MetadataProvider hands out parameter metadata while a derived query is
// being built, consuming the method's bindable parameters in order.
type MetadataProvider struct {
	bindable []*binding.Parameter
	next     int
	escape   rune
	metadata []*ParameterMetadata
}

// NewMetadataProvider creates a provider over the method's declared
// parameters using the default LIKE escape character.
func NewMetadataProvider(params *binding.Parameters) *MetadataProvider {
	return &MetadataProvider{
		bindable: params.Bindable(),
		escape:   sqlparse.DefaultEscapeCharacter,
	}
}

// Next consumes the next bindable parameter for the given part and returns
// its placeholder metadata. ignoreCase is the effective case handling the
// creator decided for the part's leaf.
func (p *MetadataProvider) Next(part *parttree.Part, collectionLeaf, ignoreCase bool) (*ParameterMetadata, error) {
	if p.next >= len(p.bindable) {
		return nil, fmt.Errorf("method needs a parameter for condition %s on %q but none is left; declared bindable parameters: %d",
			part.Type, part.Property, len(p.bindable))
	}
	param := p.bindable[p.next]
	p.next++

	name := param.Name
	if name == "" {
		name = "param" + strconv.Itoa(p.next)
	}

	m := &ParameterMetadata{
		Parameter:      param,
		Name:           name,
		Position:       p.next,
		Type:           part.Type,
		IgnoreCase:     ignoreCase,
		CollectionLeaf: collectionLeaf,
		Escape:         p.escape,
	}
	p.metadata = append(p.metadata, m)
	return m, nil
}

// Metadata returns all placeholders handed out so far, in consumption
// order.
func (p *MetadataProvider) Metadata() []*ParameterMetadata {
	return p.metadata
}
