package pgxengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

type Role struct {
	ID   int64 `orm:"id"`
	Name string
}

type Address struct {
	City    string
	ZipCode string
}

type User struct {
	ID        int64 `orm:"id"`
	Name      string
	Age       int
	Active    bool
	Manager   *User   `orm:"manyToOne"`
	Roles     []Role  `orm:"manyToMany"`
	Address   Address `orm:"embedded"`
	Nicknames []string
}

func testModel(t *testing.T) *metamodel.Metamodel {
	t.Helper()
	return metamodel.New().MustRegister(User{})
}

func TestTranslateEntityQuery(t *testing.T) {
	mm := testModel(t)

	tests := []struct {
		name  string
		query string
		sql   string
		slots []string
	}{
		{
			name:  "simple restriction",
			query: "select u from User u where u.name = :name",
			sql:   "select u.* from users u where u.name = $1",
			slots: []string{"name"},
		},
		{
			name:  "composite predicate",
			query: "select u from User u where (u.name = :name and u.age > :age) or u.active = true",
			sql:   "select u.* from users u where (u.name = $1 and u.age > $2) or u.active = true",
			slots: []string{"name", "age"},
		},
		{
			name:  "repeated placeholder shares slot",
			query: "select u from User u where u.name = :name or u.name = :name",
			sql:   "select u.* from users u where u.name = $1 or u.name = $1",
			slots: []string{"name"},
		},
		{
			name:  "count",
			query: "select count(u) from User u where u.active = :active",
			sql:   "select count(*) from users u where u.active = $1",
			slots: []string{"active"},
		},
		{
			name:  "count distinct",
			query: "select count(distinct u) from User u",
			sql:   "select count(distinct u.id) from users u",
		},
		{
			name:  "identifier selection",
			query: "select u.id from User u where u.name = :name",
			sql:   "select u.id from users u where u.name = $1",
			slots: []string{"name"},
		},
		{
			name:  "distinct entity",
			query: "select distinct u from User u",
			sql:   "select distinct u.* from users u",
		},
		{
			name:  "to-one join",
			query: "select u from User u left join u.manager manager where manager.name = :name",
			sql:   "select u.* from users u left join users manager on manager.id = u.manager_id where manager.name = $1",
			slots: []string{"name"},
		},
		{
			name:  "many-to-many join",
			query: "select u from User u left join u.roles roles where roles.name = :name",
			sql: "select u.* from users u left join users_roles roles_link on roles_link.user_id = u.id " +
				"left join roles roles on roles.id = roles_link.role_id where roles.name = $1",
			slots: []string{"name"},
		},
		{
			name:  "embedded path",
			query: "select u from User u where u.address.zipCode = :zip",
			sql:   "select u.* from users u where u.address_zip_code = $1",
			slots: []string{"zip"},
		},
		{
			name:  "to-one leaf compares foreign key",
			query: "select u from User u where u.manager = :manager",
			sql:   "select u.* from users u where u.manager_id = $1",
			slots: []string{"manager"},
		},
		{
			name:  "in collection",
			query: "select u from User u where u.age in (:ages)",
			sql:   "select u.* from users u where u.age = any($1)",
			slots: []string{"ages"},
		},
		{
			name:  "not in collection",
			query: "select u from User u where u.age not in (:ages)",
			sql:   "select u.* from users u where u.age != all($1)",
			slots: []string{"ages"},
		},
		{
			name:  "member of",
			query: "select u from User u where :role member of u.roles",
			sql: "select u.* from users u where exists " +
				"(select 1 from users_roles jt where jt.user_id = u.id and jt.role_id = $1)",
			slots: []string{"role"},
		},
		{
			name:  "not member of",
			query: "select u from User u where :role not member of u.roles",
			sql: "select u.* from users u where not exists " +
				"(select 1 from users_roles jt where jt.user_id = u.id and jt.role_id = $1)",
			slots: []string{"role"},
		},
		{
			name:  "is empty",
			query: "select u from User u where u.roles is empty",
			sql:   "select u.* from users u where not exists (select 1 from users_roles jt where jt.user_id = u.id)",
		},
		{
			name:  "is not empty",
			query: "select u from User u where u.roles is not empty",
			sql:   "select u.* from users u where exists (select 1 from users_roles jt where jt.user_id = u.id)",
		},
		{
			name:  "between",
			query: "select u from User u where u.age between :min and :max",
			sql:   "select u.* from users u where u.age between $1 and $2",
			slots: []string{"min", "max"},
		},
		{
			name:  "like with escape",
			query: `select u from User u where u.name like :name escape '\'`,
			sql:   `select u.* from users u where u.name like $1 escape '\'`,
			slots: []string{"name"},
		},
		{
			name:  "is null",
			query: "select u from User u where u.manager is null",
			sql:   "select u.* from users u where u.manager_id is null",
		},
		{
			name:  "order by",
			query: "select u from User u where u.active = :active order by u.age desc, lower(u.name) asc",
			sql:   "select u.* from users u where u.active = $1 order by u.age desc, lower(u.name) asc",
			slots: []string{"active"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			translated, err := translateEntityQuery(mm, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, translated.SQL)
			assert.Equal(t, tt.slots, translated.Slots)
		})
	}
}

func TestTranslateEntityQuery_Errors(t *testing.T) {
	mm := testModel(t)

	_, err := translateEntityQuery(mm, "select x from Unknown x")
	assert.ErrorContains(t, err, "unknown entity")

	_, err = translateEntityQuery(mm, "select u from User u where u.salary = :s")
	assert.ErrorContains(t, err, "no attribute")

	_, err = translateEntityQuery(mm, "select u from User u where u.roles.name = :name")
	assert.ErrorContains(t, err, "without a join")
}

func TestRewriteNativePlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		sql   string
		slots []string
	}{
		{
			name:  "named",
			query: "select * from users where name = :name and age > :age",
			sql:   "select * from users where name = $1 and age > $2",
			slots: []string{"name", "age"},
		},
		{
			name:  "indexed",
			query: "select * from users where age > ?2 and name = ?1",
			sql:   "select * from users where age > $1 and name = $2",
			slots: []string{"?2", "?1"},
		},
		{
			name:  "jdbc style",
			query: "select * from users where name = ? and age > ?",
			sql:   "select * from users where name = $1 and age > $2",
			slots: []string{"?1", "?2"},
		},
		{
			name:  "cast untouched",
			query: "select age::int from users where name = :name",
			sql:   "select age::int from users where name = $1",
			slots: []string{"name"},
		},
		{
			name:  "quoted literals untouched",
			query: "select * from users where name = ':name' and role = :role",
			sql:   "select * from users where name = ':name' and role = $1",
			slots: []string{"role"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			translated, err := rewriteNativePlaceholders(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, translated.SQL)
			assert.Equal(t, tt.slots, translated.Slots)
		})
	}
}
