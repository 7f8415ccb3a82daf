package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderBuilders(t *testing.T) {
	order := OrderBy("name")
	assert.Equal(t, "name", order.Property)
	assert.False(t, order.IsDescending())
	assert.False(t, order.IgnoreCase)
	assert.False(t, order.IsUnsafe())

	desc := order.Descending()
	assert.True(t, desc.IsDescending())
	assert.False(t, order.IsDescending(), "builders return copies")

	assert.False(t, desc.Ascending().IsDescending())
	assert.True(t, order.IgnoringCase().IgnoreCase)
	assert.True(t, order.Unsafe().IsUnsafe())
}

func TestSortBy(t *testing.T) {
	sort := SortBy("name", "age")
	assert.True(t, sort.IsSorted())
	assert.Len(t, sort.Orders, 2)
	assert.Equal(t, "name", sort.Orders[0].Property)
	assert.Equal(t, "age", sort.Orders[1].Property)
}

func TestSortAnd(t *testing.T) {
	combined := SortBy("name").And(NewSort(OrderBy("age").Descending()))
	assert.Len(t, combined.Orders, 2)
	assert.Equal(t, "name", combined.Orders[0].Property)
	assert.Equal(t, "age", combined.Orders[1].Property)
	assert.True(t, combined.Orders[1].IsDescending())
}

func TestSortString(t *testing.T) {
	assert.Equal(t, "unsorted", Unsorted().String())
	assert.Equal(t, "name: asc, age: desc",
		NewSort(OrderBy("name"), OrderBy("age").Descending()).String())
}

func TestPageableOffset(t *testing.T) {
	assert.Equal(t, 0, PageRequest(0, 20).Offset())
	assert.Equal(t, 40, PageRequest(2, 20).Offset())
	assert.Equal(t, 0, UnpagedRequest(Unsorted()).Offset())
}

func TestPageableIsPaged(t *testing.T) {
	assert.True(t, PageRequest(0, 20).IsPaged())
	assert.True(t, PageRequestWith(1, 10, SortBy("name")).IsPaged())
	assert.False(t, UnpagedRequest(SortBy("name")).IsPaged())
}
