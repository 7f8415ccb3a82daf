package parttree

import (
	"testing"

	"github.com/ekaya-inc/repoquery/pkg/domain"
)

func mustParse(t *testing.T, method string) *PartTree {
	t.Helper()
	tree, err := New(method)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", method, err)
	}
	return tree
}

func TestNew_Subjects(t *testing.T) {
	tests := []struct {
		method   string
		delete   bool
		count    bool
		exists   bool
		distinct bool
		limit    int
	}{
		{method: "findByName"},
		{method: "readByName"},
		{method: "getByName"},
		{method: "queryByName"},
		{method: "searchByName"},
		{method: "streamByName"},
		{method: "countByName", count: true},
		{method: "existsByName", exists: true},
		{method: "deleteByName", delete: true},
		{method: "removeByName", delete: true},
		{method: "findDistinctByName", distinct: true},
		{method: "findFirstByName", limit: 1},
		{method: "findTopByName", limit: 1},
		{method: "findTop3ByName", limit: 3},
		{method: "findFirst10ByName", limit: 10},
		{method: "findDistinctTop5ByName", distinct: true, limit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			tree := mustParse(t, tt.method)
			if tree.Delete != tt.delete {
				t.Errorf("Delete = %v, want %v", tree.Delete, tt.delete)
			}
			if tree.CountProjection != tt.count {
				t.Errorf("CountProjection = %v, want %v", tree.CountProjection, tt.count)
			}
			if tree.ExistsProjection != tt.exists {
				t.Errorf("ExistsProjection = %v, want %v", tree.ExistsProjection, tt.exists)
			}
			if tree.Distinct != tt.distinct {
				t.Errorf("Distinct = %v, want %v", tree.Distinct, tt.distinct)
			}
			if tree.MaxResults != tt.limit {
				t.Errorf("MaxResults = %d, want %d", tree.MaxResults, tt.limit)
			}
			if !tree.HasPredicate() {
				t.Error("expected a predicate part")
			}
		})
	}
}

func TestNew_OrAndGrouping(t *testing.T) {
	tree := mustParse(t, "findByNameAndAgeOrActive")

	if len(tree.Groups) != 2 {
		t.Fatalf("expected 2 or-groups, got %d", len(tree.Groups))
	}
	if len(tree.Groups[0].Parts) != 2 {
		t.Fatalf("expected 2 and-parts in first group, got %d", len(tree.Groups[0].Parts))
	}
	if got := tree.Groups[0].Parts[0].Property; got != "name" {
		t.Errorf("first part property = %q, want name", got)
	}
	if got := tree.Groups[0].Parts[1].Property; got != "age" {
		t.Errorf("second part property = %q, want age", got)
	}
	if got := tree.Groups[1].Parts[0].Property; got != "active" {
		t.Errorf("or-group property = %q, want active", got)
	}
}

func TestNew_UnicodePropertyHumps(t *testing.T) {
	// camel humps are not limited to ASCII letters
	tree := mustParse(t, "findByPrénomAndÂge")

	if len(tree.Groups) != 1 || len(tree.Groups[0].Parts) != 2 {
		t.Fatalf("unexpected grouping: %+v", tree.Groups)
	}
	if got := tree.Groups[0].Parts[0].Property; got != "prénom" {
		t.Errorf("first part property = %q, want prénom", got)
	}
	if got := tree.Groups[0].Parts[1].Property; got != "âge" {
		t.Errorf("second part property = %q, want âge", got)
	}

	tree = mustParse(t, "findByNameOrderByÂgeDesc")
	if len(tree.Sort.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(tree.Sort.Orders))
	}
	if o := tree.Sort.Orders[0]; o.Property != "âge" || !o.IsDescending() {
		t.Errorf("order = %+v, want âge desc", o)
	}
}

func TestNew_KeywordInsidePropertyDoesNotSplit(t *testing.T) {
	// "Order" contains "Or" but only an upper-case follower splits
	tree := mustParse(t, "findByOrderNumber")
	if len(tree.Groups) != 1 || len(tree.Groups[0].Parts) != 1 {
		t.Fatalf("unexpected grouping: %+v", tree.Groups)
	}
	if got := tree.Groups[0].Parts[0].Property; got != "orderNumber" {
		t.Errorf("property = %q, want orderNumber", got)
	}
}

func TestNew_OperatorExtraction(t *testing.T) {
	tests := []struct {
		method   string
		property string
		typ      Type
		args     int
	}{
		{"findByName", "name", SimpleProperty, 1},
		{"findByNameIs", "name", SimpleProperty, 1},
		{"findByNameEquals", "name", SimpleProperty, 1},
		{"findByNameNot", "name", NegatingSimpleProperty, 1},
		{"findByAgeBetween", "age", Between, 2},
		{"findByAgeIsBetween", "age", Between, 2},
		{"findByManagerIsNull", "manager", IsNull, 0},
		{"findByManagerNotNull", "manager", IsNotNull, 0},
		{"findByAgeLessThan", "age", LessThan, 1},
		{"findByAgeLessThanEqual", "age", LessThanEqual, 1},
		{"findByAgeGreaterThan", "age", GreaterThan, 1},
		{"findByAgeGreaterThanEqual", "age", GreaterThanEqual, 1},
		{"findByCreatedAtBefore", "createdAt", Before, 1},
		{"findByCreatedAtAfter", "createdAt", After, 1},
		{"findByNameLike", "name", Like, 1},
		{"findByNameNotLike", "name", NotLike, 1},
		{"findByNameStartingWith", "name", StartingWith, 1},
		{"findByNameStartsWith", "name", StartingWith, 1},
		{"findByNameEndingWith", "name", EndingWith, 1},
		{"findByNameContaining", "name", Containing, 1},
		{"findByNameNotContaining", "name", NotContaining, 1},
		{"findByRolesIsEmpty", "roles", IsEmpty, 0},
		{"findByRolesIsNotEmpty", "roles", IsNotEmpty, 0},
		{"findByAgeIn", "age", In, 1},
		{"findByAgeNotIn", "age", NotIn, 1},
		{"findByActiveTrue", "active", True, 0},
		{"findByActiveFalse", "active", False, 0},
		// the keyword must start a camel hump, "Shin" keeps its "in"
		{"findByShin", "shin", SimpleProperty, 1},
		{"findByCabin", "cabin", SimpleProperty, 1},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			tree := mustParse(t, tt.method)
			part := tree.Groups[0].Parts[0]
			if part.Property != tt.property {
				t.Errorf("property = %q, want %q", part.Property, tt.property)
			}
			if part.Type != tt.typ {
				t.Errorf("type = %v, want %v", part.Type, tt.typ)
			}
			if part.NumberOfArguments() != tt.args {
				t.Errorf("arguments = %d, want %d", part.NumberOfArguments(), tt.args)
			}
		})
	}
}

func TestNew_NumberOfArguments(t *testing.T) {
	tree := mustParse(t, "findByAgeBetweenAndManagerIsNullOrNameLike")
	if got := tree.NumberOfArguments(); got != 3 {
		t.Errorf("NumberOfArguments = %d, want 3", got)
	}
}

func TestNew_NestedPropertySource(t *testing.T) {
	tree := mustParse(t, "findByAddress_ZipCode")
	if got := tree.Groups[0].Parts[0].Property; got != "address.zipCode" {
		t.Errorf("property = %q, want address.zipCode", got)
	}
}

func TestNew_IgnoreCase(t *testing.T) {
	tests := []struct {
		method   string
		ignoring []IgnoreCaseType
	}{
		{"findByNameIgnoreCase", []IgnoreCaseType{IgnoreCaseAlways}},
		{"findByNameIgnoringCaseLike", []IgnoreCaseType{IgnoreCaseAlways}},
		{"findByNameAndAge", []IgnoreCaseType{CaseSensitive, CaseSensitive}},
		{"findByNameAndAgeAllIgnoreCase", []IgnoreCaseType{IgnoreCaseWhenPossible, IgnoreCaseWhenPossible}},
		{"findByNameIgnoreCaseAndAgeAllIgnoringCase", []IgnoreCaseType{IgnoreCaseAlways, IgnoreCaseWhenPossible}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			parts := mustParse(t, tt.method).Parts()
			if len(parts) != len(tt.ignoring) {
				t.Fatalf("expected %d parts, got %d", len(tt.ignoring), len(parts))
			}
			for i, want := range tt.ignoring {
				if parts[i].Ignoring != want {
					t.Errorf("part %d ignoring = %v, want %v", i, parts[i].Ignoring, want)
				}
			}
		})
	}
}

func TestNew_OrderBy(t *testing.T) {
	tree := mustParse(t, "findByActiveOrderByLastnameAscFirstnameDesc")

	want := domain.NewSort(domain.OrderBy("lastname"), domain.OrderBy("firstname").Descending())
	if len(tree.Sort.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(tree.Sort.Orders))
	}
	for i, o := range want.Orders {
		got := tree.Sort.Orders[i]
		if got.Property != o.Property || got.Direction != o.Direction {
			t.Errorf("order %d = %+v, want %+v", i, got, o)
		}
	}
}

func TestNew_OrderByWithoutDirection(t *testing.T) {
	tree := mustParse(t, "findByActiveOrderByName")
	if len(tree.Sort.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(tree.Sort.Orders))
	}
	if o := tree.Sort.Orders[0]; o.Property != "name" || o.IsDescending() {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestNew_OrderByIgnoreCase(t *testing.T) {
	tree := mustParse(t, "findByActiveOrderByNameIgnoreCaseDesc")
	o := tree.Sort.Orders[0]
	if o.Property != "name" || !o.IgnoreCase || !o.IsDescending() {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestNew_OrderByOnly(t *testing.T) {
	tree := mustParse(t, "findFirstByOrderByAgeDesc")
	if tree.HasPredicate() {
		t.Error("expected no predicate parts")
	}
	if tree.MaxResults != 1 {
		t.Errorf("MaxResults = %d, want 1", tree.MaxResults)
	}
	if o := tree.Sort.Orders[0]; o.Property != "age" || !o.IsDescending() {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"empty name", ""},
		{"unknown verb", "fetchByName"},
		{"no By separator", "findName"},
		{"double order by", "findByNameOrderByAgeOrderByName"},
		{"zero limit", "findTop0ByName"},
		{"empty criterion", "findByNameAndAndAge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.method); err == nil {
				t.Errorf("New(%q) succeeded, want error", tt.method)
			}
		})
	}
}
