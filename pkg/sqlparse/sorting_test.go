package sqlparse

import (
	"errors"
	"testing"

	"github.com/ekaya-inc/repoquery/pkg/apperrors"
	"github.com/ekaya-inc/repoquery/pkg/domain"
)

func TestApplySorting(t *testing.T) {
	tests := []struct {
		name  string
		query string
		sort  domain.Sort
		want  string
	}{
		{
			name:  "unsorted returns query unchanged",
			query: "select u from User u",
			sort:  domain.Unsorted(),
			want:  "select u from User u",
		},
		{
			name:  "single property qualified with alias",
			query: "select u from User u",
			sort:  domain.SortBy("name"),
			want:  "select u from User u order by u.name asc",
		},
		{
			name:  "multiple orders",
			query: "select u from User u",
			sort:  domain.NewSort(domain.OrderBy("name"), domain.OrderBy("age").Descending()),
			want:  "select u from User u order by u.name asc, u.age desc",
		},
		{
			name:  "extends existing order by",
			query: "select u from User u order by u.id asc",
			sort:  domain.SortBy("name"),
			want:  "select u from User u order by u.id asc, u.name asc",
		},
		{
			name:  "ignore case wraps in lower",
			query: "select u from User u",
			sort:  domain.NewSort(domain.OrderBy("name").IgnoringCase()),
			want:  "select u from User u order by lower(u.name) asc",
		},
		{
			name:  "already qualified property kept",
			query: "select u from User u",
			sort:  domain.SortBy("u.name"),
			want:  "select u from User u order by u.name asc",
		},
		{
			name:  "join alias not requalified",
			query: "select u from User u left join u.manager m",
			sort:  domain.SortBy("m.name"),
			want:  "select u from User u left join u.manager m order by m.name asc",
		},
		{
			name:  "function alias referenced directly",
			query: "select u, length(u.name) as len from User u",
			sort:  domain.SortBy("len"),
			want:  "select u, length(u.name) as len from User u order by len asc",
		},
		{
			name:  "field alias referenced directly",
			query: "select u.name as lastname from User u",
			sort:  domain.SortBy("lastname"),
			want:  "select u.name as lastname from User u order by lastname asc",
		},
		{
			name:  "unsafe order passes arbitrary expression",
			query: "select u from User u",
			sort:  domain.NewSort(domain.OrderBy("length(u.name)").Unsafe()),
			want:  "select u from User u order by length(u.name) asc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alias := DetectAlias(tt.query)
			got, err := ApplySorting(tt.query, tt.sort, alias)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestApplySorting_RejectsExpressionsUnlessUnsafe(t *testing.T) {
	_, err := ApplySorting("select u from User u", domain.SortBy("length(u.name)"), "u")
	if !errors.Is(err, apperrors.ErrUnsafeSort) {
		t.Fatalf("expected ErrUnsafeSort, got %v", err)
	}
}

func TestApplySorting_RejectsInjectionEvenWhenUnsafe(t *testing.T) {
	order := domain.OrderBy("name; DROP TABLE users --").Unsafe()
	_, err := ApplySorting("select u from User u", domain.NewSort(order), "u")
	if !errors.Is(err, apperrors.ErrUnsafeSort) {
		t.Fatalf("expected ErrUnsafeSort, got %v", err)
	}
}
