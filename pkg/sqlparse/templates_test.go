package sqlparse

import (
	"testing"

	"github.com/ekaya-inc/repoquery/pkg/domain"
)

func TestWholeEntityTemplates(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"delete all", DeleteAllQuery("User"), "delete from User x"},
		{"count all", CountAllQuery("User"), "select count(x) from User x"},
		{"exists by id", ExistsQuery("User", "id"), "select count(x) from User x where x.id = :id"},
		{"select all", SelectAllQuery("User"), "select x from User x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestExistsQueryBindsIDParameter(t *testing.T) {
	dq, err := NewDeclaredQuery(ExistsQuery("User", "id"), false)
	if err != nil {
		t.Fatalf("NewDeclaredQuery failed: %v", err)
	}
	if len(dq.Bindings()) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(dq.Bindings()))
	}
	if got := dq.Bindings()[0].Name; got != "id" {
		t.Errorf("binding name = %q, want id", got)
	}
	if got := dq.Alias(); got != "x" {
		t.Errorf("alias = %q, want x", got)
	}
}

func TestSelectAllQueryAcceptsSorting(t *testing.T) {
	sorted, err := ApplySorting(SelectAllQuery("User"),
		domain.NewSort(domain.OrderBy("name").Descending()), "x")
	if err != nil {
		t.Fatalf("ApplySorting failed: %v", err)
	}
	if want := "select x from User x order by x.name desc"; sorted != want {
		t.Errorf("sorted = %q, want %q", sorted, want)
	}
}
