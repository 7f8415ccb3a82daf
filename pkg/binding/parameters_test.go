package binding

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/repoquery/pkg/domain"
)

func TestNewParameters_SpecialParameters(t *testing.T) {
	ps := mustParams(t,
		stringParam(0, "name"),
		&Parameter{Index: 1, Type: reflect.TypeOf(domain.Pageable{})},
		&Parameter{Index: 2, Type: reflect.TypeOf(domain.Sort{})},
	)

	assert.Equal(t, 3, ps.Len())
	assert.Equal(t, 1, ps.NumberOfBindable())
	assert.True(t, ps.HasPageable())
	assert.True(t, ps.HasSort())
	assert.Equal(t, 1, ps.PageableIndex())
	assert.Equal(t, 2, ps.SortIndex())
}

func TestNewParameters_DuplicateSpecialsRejected(t *testing.T) {
	_, err := NewParameters(
		&Parameter{Index: 0, Type: reflect.TypeOf(domain.Sort{})},
		&Parameter{Index: 1, Type: reflect.TypeOf(domain.Sort{})},
	)
	require.Error(t, err)

	_, err = NewParameters(
		&Parameter{Index: 0, Type: reflect.TypeOf(domain.Pageable{})},
		&Parameter{Index: 1, Type: reflect.TypeOf(domain.Pageable{})},
	)
	require.Error(t, err)
}

func TestNewParameters_IndexMismatchRejected(t *testing.T) {
	_, err := NewParameters(stringParam(1, "name"))
	require.Error(t, err)
}

func TestParameters_BindablePosition(t *testing.T) {
	sort := &Parameter{Index: 1, Type: reflect.TypeOf(domain.Sort{})}
	last := stringParam(2, "last")
	ps := mustParams(t, stringParam(0, "first"), sort, last)

	assert.Equal(t, 2, ps.BindablePosition(last))
	assert.Equal(t, 0, ps.BindablePosition(sort))
}

func TestAccessor_SortFromSortArgument(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"), &Parameter{Index: 1, Type: reflect.TypeOf(domain.Sort{})})
	a := mustAccessor(t, ps, "ann", domain.SortBy("age"))

	assert.Equal(t, domain.SortBy("age"), a.Sort())
}

func TestAccessor_SortFoldedFromPageable(t *testing.T) {
	ps := mustParams(t, &Parameter{Index: 0, Type: reflect.TypeOf(domain.Pageable{})})
	a := mustAccessor(t, ps, domain.PageRequestWith(0, 10, domain.SortBy("name")))

	assert.Equal(t, domain.SortBy("name"), a.Sort())
	assert.True(t, a.Pageable().IsPaged())
}

func TestAccessor_UnpagedWhenNoPageableDeclared(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	a := mustAccessor(t, ps, "ann")

	assert.False(t, a.Pageable().IsPaged())
}

func TestAccessor_ArgumentCountValidated(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	_, err := NewAccessor(ps, []any{"ann", "extra"})
	require.Error(t, err)
}

func TestValueIterator(t *testing.T) {
	ps := mustParams(t,
		stringParam(0, "first"),
		&Parameter{Index: 1, Type: reflect.TypeOf(domain.Sort{})},
		stringParam(2, "last"),
	)
	a := mustAccessor(t, ps, "ann", domain.SortBy("age"), "lee")

	it := a.Iterator()
	v, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "ann", v)

	v, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "lee", v)

	assert.False(t, it.HasNext())
	_, err = it.Next()
	require.Error(t, err)
}
