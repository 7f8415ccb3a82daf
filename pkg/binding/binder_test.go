package binding

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/repoquery/pkg/apperrors"
	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

type fakeTarget struct {
	named      map[string]any
	positional map[int]any

	// declared restricts which named placeholders exist; nil accepts all
	declared map[string]bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{named: make(map[string]any), positional: make(map[int]any)}
}

func (t *fakeTarget) SetNamed(name string, value any, _ domain.TemporalType) error {
	if t.declared != nil && !t.declared[name] {
		return fmt.Errorf("no parameter named %q", name)
	}
	t.named[name] = value
	return nil
}

func (t *fakeTarget) SetPositional(position int, value any, _ domain.TemporalType) error {
	t.positional[position] = value
	return nil
}

func stringParam(index int, name string) *Parameter {
	return &Parameter{Name: name, Index: index, Type: reflect.TypeOf("")}
}

func mustParams(t *testing.T, params ...*Parameter) *Parameters {
	t.Helper()
	ps, err := NewParameters(params...)
	require.NoError(t, err)
	return ps
}

func mustAccessor(t *testing.T, ps *Parameters, values ...any) *Accessor {
	t.Helper()
	a, err := NewAccessor(ps, values)
	require.NoError(t, err)
	return a
}

func parse(t *testing.T, query string) []*sqlparse.ParameterBinding {
	t.Helper()
	result, err := sqlparse.ParseBindings(query)
	require.NoError(t, err)
	return result.Bindings
}

func TestBinder_NamedBinding(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.name = :name")

	binder, err := NewBinder(ps, bindings, nil)
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
	assert.Equal(t, "ann", target.named["name"])
}

func TestBinder_PositionalBinding(t *testing.T) {
	ps := mustParams(t, stringParam(0, ""), stringParam(1, ""))
	bindings := parse(t, "select u from User u where u.first = ?1 and u.last = ?2")

	binder, err := NewBinder(ps, bindings, nil)
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann", "lee"), Strict))
	assert.Equal(t, "ann", target.positional[1])
	assert.Equal(t, "lee", target.positional[2])
}

func TestBinder_LikeBindingWrapsValue(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.name like %:name%")

	binder, err := NewBinder(ps, bindings, nil)
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
	assert.Equal(t, "%ann%", target.named["name"])
}

func TestBinder_RenamedLikeBindingResolvesBaseParameter(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.first like %:name or u.last like :name%")

	binder, err := NewBinder(ps, bindings, nil)
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
	assert.Equal(t, "%ann", target.named["name"])
	assert.Equal(t, "ann%", target.named["name_1"])
}

func TestBinder_InBindingFlattens(t *testing.T) {
	ps := mustParams(t, &Parameter{Name: "ids", Index: 0, Type: reflect.TypeOf([]int{})})
	bindings := parse(t, "select u from User u where u.id in :ids")

	binder, err := NewBinder(ps, bindings, nil)
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, []int{1, 2}), Strict))
	assert.Equal(t, []any{1, 2}, target.named["ids"])
}

func TestBinder_UnresolvableBindingFailsAtConstruction(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.nick = :nick")

	_, err := NewBinder(ps, bindings, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrParameterNotFound))
}

func TestBinder_PositionOutOfRangeFailsAtConstruction(t *testing.T) {
	ps := mustParams(t, stringParam(0, ""))
	bindings := parse(t, "select u from User u where u.a = ?1 and u.b = ?2")

	_, err := NewBinder(ps, bindings, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrParameterNotFound))
}

func TestBinder_ExpressionBinding(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.name = :name and u.tenant = :#{tenant.id}")

	evaluator := NewExprEvaluator(map[string]any{
		"tenant": map[string]any{"id": "acme"},
	})
	binder, err := NewBinder(ps, bindings, evaluator)
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
	assert.Equal(t, "ann", target.named["name"])
	assert.Equal(t, "acme", target.named[sqlparse.SyntheticParameterPrefix+"1"])
}

func TestBinder_ExpressionSeesNamedArguments(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.greeting = :#{'hello ' + name}")

	binder, err := NewBinder(ps, bindings, NewExprEvaluator(nil))
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
	assert.Equal(t, "hello ann", target.named[sqlparse.SyntheticParameterPrefix+"1"])
}

func TestBinder_ExpressionWithoutEvaluatorRejected(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.name = :#{principal.name}")

	_, err := NewBinder(ps, bindings, nil)
	require.Error(t, err)
}

func TestBinder_LenientSwallowsMissingPlaceholder(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.name = :name")

	binder, err := NewBinder(ps, bindings, nil)
	require.NoError(t, err)

	// a derived count query may drop placeholders the original query has
	target := newFakeTarget()
	target.declared = map[string]bool{}

	require.Error(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Lenient))
}

func TestBinder_ExpressionFailureIsAlwaysLenient(t *testing.T) {
	ps := mustParams(t, stringParam(0, "name"))
	bindings := parse(t, "select u from User u where u.x = :#{missing.field}")

	binder, err := NewBinder(ps, bindings, NewExprEvaluator(nil))
	require.NoError(t, err)

	target := newFakeTarget()
	require.NoError(t, binder.Bind(target, mustAccessor(t, ps, "ann"), Strict))
}
