package sqlparse

import "fmt"

// Queries derived for whole-entity operations use a fixed alias so that
// sorting applied on top of them can qualify properties.
const entityAlias = "x"

// DeleteAllQuery returns a bulk delete statement for the entity.
func DeleteAllQuery(entityName string) string {
	return fmt.Sprintf("delete from %s %s", entityName, entityAlias)
}

// CountAllQuery returns a count over all instances of the entity.
func CountAllQuery(entityName string) string {
	return fmt.Sprintf("select count(%s) from %s %s", entityAlias, entityName, entityAlias)
}

// ExistsQuery returns an existence check matching the id attribute against
// a named parameter of the same name.
func ExistsQuery(entityName, idAttribute string) string {
	return fmt.Sprintf("select count(%s) from %s %s where %s.%s = :%s",
		entityAlias, entityName, entityAlias, entityAlias, idAttribute, idAttribute)
}

// SelectAllQuery returns a selection of every instance of the entity.
func SelectAllQuery(entityName string) string {
	return fmt.Sprintf("select %s from %s %s", entityAlias, entityName, entityAlias)
}
