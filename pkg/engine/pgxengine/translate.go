package pgxengine

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ekaya-inc/repoquery/pkg/metamodel"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

// Translated is an entity-level query lowered to PostgreSQL: the SQL text
// with $N placeholders and the parameter slot each of them answers to, in
// order. Named placeholders keep their name; positional ones use "?N".
type Translated struct {
	SQL   string
	Slots []string
}

// aliasTarget is what a query alias refers to: an entity table, or the
// table of an element collection joined off its owner.
type aliasTarget struct {
	entity  *metamodel.EntityType
	element *metamodel.Attribute
}

// translator lowers one entity query. The grammar is the one the criteria
// renderer produces: a select list, the root entity with alias, joins over
// association paths, an optional where clause and an optional order by.
type translator struct {
	mm     *metamodel.Metamodel
	tokens []sqlparse.Token
	pos    int

	aliases map[string]aliasTarget
	slots   []string
}

func translateEntityQuery(mm *metamodel.Metamodel, query string) (*Translated, error) {
	var tokens []sqlparse.Token
	for _, tok := range sqlparse.Tokenize(query) {
		if tok.Kind != sqlparse.TokenComment {
			tokens = append(tokens, tok)
		}
	}

	t := &translator{mm: mm, tokens: tokens, aliases: make(map[string]aliasTarget)}
	sql, err := t.translate()
	if err != nil {
		return nil, fmt.Errorf("translating query %q: %w", query, err)
	}
	return &Translated{SQL: sql, Slots: t.slots}, nil
}

func (t *translator) translate() (string, error) {
	if !t.consumeKeyword("select") {
		return "", fmt.Errorf("expected select")
	}
	selection := t.collectUntilKeyword("from")
	if !t.consumeKeyword("from") {
		return "", fmt.Errorf("expected from clause")
	}

	entityName, ok := t.nextIdent()
	if !ok {
		return "", fmt.Errorf("expected entity name after from")
	}
	entity := t.mm.EntityByName(entityName)
	if entity == nil {
		return "", fmt.Errorf("unknown entity %s", entityName)
	}
	rootAlias, ok := t.nextIdent()
	if !ok {
		return "", fmt.Errorf("expected alias after entity %s", entityName)
	}
	t.aliases[rootAlias] = aliasTarget{entity: entity}

	joins, err := t.parseJoins()
	if err != nil {
		return "", err
	}

	var whereTokens, orderTokens []sqlparse.Token
	if t.consumeKeyword("where") {
		whereTokens = t.collectUntilOrderBy()
	}
	if t.consumeKeyword("order") {
		if !t.consumeKeyword("by") {
			return "", fmt.Errorf("expected by after order")
		}
		orderTokens = t.tokens[t.pos:]
		t.pos = len(t.tokens)
	}

	var b strings.Builder
	b.WriteString("select ")
	sel, err := t.translateSelection(selection)
	if err != nil {
		return "", err
	}
	b.WriteString(sel)
	b.WriteString(" from ")
	b.WriteString(entity.Table)
	b.WriteByte(' ')
	b.WriteString(rootAlias)
	for _, j := range joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}
	if len(whereTokens) > 0 {
		clause, err := t.translateExpression(whereTokens)
		if err != nil {
			return "", err
		}
		b.WriteString(" where ")
		b.WriteString(clause)
	}
	if len(orderTokens) > 0 {
		clause, err := t.translateExpression(orderTokens)
		if err != nil {
			return "", err
		}
		b.WriteString(" order by ")
		b.WriteString(clause)
	}
	return b.String(), nil
}

// parseJoins consumes "[left] join owner.path alias" clauses and emits
// their SQL form. Association paths may run through embedded attributes.
func (t *translator) parseJoins() ([]string, error) {
	var joins []string
	for {
		outer := false
		switch {
		case t.peekKeyword("left"):
			t.pos++
			if !t.consumeKeyword("join") {
				return nil, fmt.Errorf("expected join after left")
			}
			outer = true
		case t.peekKeyword("join"):
			t.pos++
		default:
			return joins, nil
		}

		path, ok := t.nextIdent()
		if !ok || !strings.Contains(path, ".") {
			return nil, fmt.Errorf("expected association path after join, got %q", path)
		}
		alias, ok := t.nextIdent()
		if !ok {
			return nil, fmt.Errorf("expected alias for join %s", path)
		}

		sql, err := t.joinSQL(outer, path, alias)
		if err != nil {
			return nil, err
		}
		joins = append(joins, sql)
	}
}

func (t *translator) joinSQL(outer bool, path, alias string) (string, error) {
	owner, prefix, attr, err := t.resolveAssociation(path)
	if err != nil {
		return "", err
	}
	ownerAlias := strings.SplitN(path, ".", 2)[0]
	ownerEntity := t.aliases[ownerAlias].entity

	kw := "join"
	if outer {
		kw = "left join"
	}

	switch {
	case attr.Kind.IsToOne() && attr.MappedBy == "":
		target := t.mm.Entity(attr.TargetType)
		if target == nil {
			return "", fmt.Errorf("join %s: target type is not managed", path)
		}
		t.aliases[alias] = aliasTarget{entity: target}
		return fmt.Sprintf("%s %s %s on %s.%s = %s.%s",
			kw, target.Table, alias, alias, idColumn(target), ownerAlias, prefix+fkColumn(attr)), nil

	case attr.Kind == metamodel.OneToMany || (attr.Kind == metamodel.OneToOne && attr.MappedBy != ""):
		target := t.mm.Entity(attr.TargetType)
		if target == nil {
			return "", fmt.Errorf("join %s: target type is not managed", path)
		}
		t.aliases[alias] = aliasTarget{entity: target}
		return fmt.Sprintf("%s %s %s on %s.%s = %s.%s",
			kw, target.Table, alias, alias, inverseFKColumn(owner, attr), ownerAlias, idColumn(ownerEntity)), nil

	case attr.Kind == metamodel.ManyToMany:
		target := t.mm.Entity(attr.TargetType)
		if target == nil {
			return "", fmt.Errorf("join %s: target type is not managed", path)
		}
		t.aliases[alias] = aliasTarget{entity: target}
		link := alias + "_link"
		return fmt.Sprintf("%s %s %s on %s.%s = %s.%s %s %s %s on %s.%s = %s.%s",
			kw, linkTable(owner, attr), link, link, snake(owner.Name)+"_id", ownerAlias, idColumn(ownerEntity),
			kw, target.Table, alias, alias, idColumn(target), link, snake(target.Name)+"_id"), nil

	case attr.Kind == metamodel.ElementCollection:
		t.aliases[alias] = aliasTarget{entity: ownerEntity, element: attr}
		return fmt.Sprintf("%s %s %s on %s.%s = %s.%s",
			kw, linkTable(owner, attr), alias, alias, snake(owner.Name)+"_id", ownerAlias, idColumn(ownerEntity)), nil

	default:
		return "", fmt.Errorf("join %s: attribute %s is not an association", path, attr.Name)
	}
}

// translateSelection lowers the select list: a bare alias selects all
// columns of its table, count selections count rows.
func (t *translator) translateSelection(sel []sqlparse.Token) (string, error) {
	if len(sel) == 0 {
		return "", fmt.Errorf("empty select list")
	}

	if sel[0].IsKeyword("count") {
		if len(sel) < 4 || sel[1].Kind != sqlparse.TokenLParen {
			return "", fmt.Errorf("malformed count selection")
		}
		inner := sel[2 : len(sel)-1]
		if len(inner) == 2 && inner[0].IsKeyword("distinct") {
			at, ok := t.aliases[inner[1].Text]
			if !ok || at.entity == nil {
				return "", fmt.Errorf("unknown alias %q in count", inner[1].Text)
			}
			return fmt.Sprintf("count(distinct %s.%s)", inner[1].Text, idColumn(at.entity)), nil
		}
		return "count(*)", nil
	}

	var parts []string
	distinct := false
	for i, tok := range sel {
		switch {
		case i == 0 && tok.IsKeyword("distinct"):
			distinct = true
		case tok.Kind == sqlparse.TokenComma:
		case tok.Kind == sqlparse.TokenIdent:
			ref, err := t.selectionRef(tok.Text)
			if err != nil {
				return "", err
			}
			parts = append(parts, ref)
		default:
			return "", fmt.Errorf("unexpected token %q in select list", tok.Text)
		}
	}
	out := strings.Join(parts, ", ")
	if distinct {
		out = "distinct " + out
	}
	return out, nil
}

func (t *translator) selectionRef(ref string) (string, error) {
	if at, ok := t.aliases[ref]; ok && at.element == nil {
		return ref + ".*", nil
	}
	return t.columnRef(ref)
}

// translateExpression lowers restriction and order-by token streams,
// rewriting paths to columns and placeholders to $N. Collection membership
// and emptiness tests become exists subqueries on the collection table.
func (t *translator) translateExpression(tokens []sqlparse.Token) (string, error) {
	var b strings.Builder
	prevEnd := -1

	// adjacent tokens stay glued so "<=" and "lower(" survive translation
	emit := func(piece string, adjacent bool) {
		if b.Len() > 0 && !adjacent {
			b.WriteByte(' ')
		}
		b.WriteString(piece)
	}
	emitToken := func(piece string, tok sqlparse.Token) {
		emit(piece, tok.Pos == prevEnd)
		prevEnd = tok.Pos + len(tok.Text)
	}
	emitSynthesized := func(piece string) {
		emit(piece, false)
		prevEnd = -1
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.Kind == sqlparse.TokenOperator && tok.Text == ":" && i+1 < len(tokens) && tokens[i+1].Kind == sqlparse.TokenIdent:
			name := tokens[i+1].Text
			// ":name [not] member of path"
			if path, negated, ok := matchMemberOf(tokens[i+2:]); ok {
				sql, err := t.memberSQL(path, name, negated)
				if err != nil {
					return "", err
				}
				emitSynthesized(sql)
				i += 2 + memberOfSpan(negated)
				continue
			}
			emit("$"+itoa(t.slot(name)), tok.Pos == prevEnd)
			prevEnd = tokens[i+1].Pos + len(name)
			i++

		case tok.IsKeyword("in") && matchesPlaceholderList(tokens[i+1:]):
			name := tokens[i+3].Text
			emitSynthesized(fmt.Sprintf("= any($%d)", t.slot(name)))
			i += 4

		case tok.IsKeyword("not") && i+1 < len(tokens) && tokens[i+1].IsKeyword("in") && matchesPlaceholderList(tokens[i+2:]):
			name := tokens[i+4].Text
			emitSynthesized(fmt.Sprintf("!= all($%d)", t.slot(name)))
			i += 5

		case tok.Kind == sqlparse.TokenIdent && t.isPathRef(tok.Text):
			// "path is [not] empty"
			if span, negated, ok := matchIsEmpty(tokens[i+1:]); ok {
				sql, err := t.emptySQL(tok.Text, negated)
				if err != nil {
					return "", err
				}
				emitSynthesized(sql)
				i += span
				continue
			}
			ref, err := t.columnRef(tok.Text)
			if err != nil {
				return "", err
			}
			emitToken(ref, tok)

		default:
			emitToken(tok.Text, tok)
		}
	}
	return b.String(), nil
}

// matchMemberOf reports whether the tokens start with "[not] member of
// <path>" and returns the path token stream tail.
func matchMemberOf(tokens []sqlparse.Token) (path string, negated, ok bool) {
	i := 0
	if len(tokens) > 0 && tokens[0].IsKeyword("not") {
		negated = true
		i = 1
	}
	if len(tokens) < i+3 || !tokens[i].IsKeyword("member") || !tokens[i+1].IsKeyword("of") {
		return "", false, false
	}
	if tokens[i+2].Kind != sqlparse.TokenIdent {
		return "", false, false
	}
	return tokens[i+2].Text, negated, true
}

// memberOfSpan is the token count of "[not] member of <path>" minus the
// loop's own increment.
func memberOfSpan(negated bool) int {
	if negated {
		return 3
	}
	return 2
}

// matchIsEmpty matches "is [not] empty" and returns how many tokens it
// spans.
func matchIsEmpty(tokens []sqlparse.Token) (span int, negated, ok bool) {
	if len(tokens) >= 2 && tokens[0].IsKeyword("is") && tokens[1].IsKeyword("empty") {
		return 2, false, true
	}
	if len(tokens) >= 3 && tokens[0].IsKeyword("is") && tokens[1].IsKeyword("not") && tokens[2].IsKeyword("empty") {
		return 3, true, true
	}
	return 0, false, false
}

// matchesPlaceholderList matches "( :name )".
func matchesPlaceholderList(tokens []sqlparse.Token) bool {
	return len(tokens) >= 4 &&
		tokens[0].Kind == sqlparse.TokenLParen &&
		tokens[1].Kind == sqlparse.TokenOperator && tokens[1].Text == ":" &&
		tokens[2].Kind == sqlparse.TokenIdent &&
		tokens[3].Kind == sqlparse.TokenRParen
}

// memberSQL builds an exists subquery testing membership of the bound value
// in the collection the path names.
func (t *translator) memberSQL(path, name string, negated bool) (string, error) {
	ownerAlias, owner, attr, err := t.resolveCollection(path)
	if err != nil {
		return "", err
	}
	ownerID := idColumn(t.aliases[ownerAlias].entity)
	slot := t.slot(name)

	var sub string
	switch attr.Kind {
	case metamodel.ManyToMany:
		target := t.mm.Entity(attr.TargetType)
		sub = fmt.Sprintf("select 1 from %s jt where jt.%s = %s.%s and jt.%s = $%d",
			linkTable(owner, attr), snake(owner.Name)+"_id", ownerAlias, ownerID, snake(target.Name)+"_id", slot)
	case metamodel.OneToMany:
		target := t.mm.Entity(attr.TargetType)
		sub = fmt.Sprintf("select 1 from %s jt where jt.%s = %s.%s and jt.%s = $%d",
			target.Table, inverseFKColumn(owner, attr), ownerAlias, ownerID, idColumn(target), slot)
	case metamodel.ElementCollection:
		sub = fmt.Sprintf("select 1 from %s jt where jt.%s = %s.%s and jt.%s = $%d",
			linkTable(owner, attr), snake(owner.Name)+"_id", ownerAlias, ownerID, attr.Column, slot)
	default:
		return "", fmt.Errorf("member of %s: attribute %s is not a collection", path, attr.Name)
	}

	if negated {
		return "not exists (" + sub + ")", nil
	}
	return "exists (" + sub + ")", nil
}

// emptySQL builds an exists subquery testing whether the collection has any
// rows for the owning entity.
func (t *translator) emptySQL(path string, negated bool) (string, error) {
	ownerAlias, owner, attr, err := t.resolveCollection(path)
	if err != nil {
		return "", err
	}
	ownerID := idColumn(t.aliases[ownerAlias].entity)

	var sub string
	switch attr.Kind {
	case metamodel.ManyToMany, metamodel.ElementCollection:
		sub = fmt.Sprintf("select 1 from %s jt where jt.%s = %s.%s",
			linkTable(owner, attr), snake(owner.Name)+"_id", ownerAlias, ownerID)
	case metamodel.OneToMany:
		target := t.mm.Entity(attr.TargetType)
		sub = fmt.Sprintf("select 1 from %s jt where jt.%s = %s.%s",
			target.Table, inverseFKColumn(owner, attr), ownerAlias, ownerID)
	default:
		return "", fmt.Errorf("%s is not a collection", path)
	}

	// "is empty" means no rows exist
	if negated {
		return "exists (" + sub + ")", nil
	}
	return "not exists (" + sub + ")", nil
}

// columnRef lowers a path reference to a column. A bare alias stands for
// the row identity; dotted paths may run through embedded attributes, and a
// to-one leaf names the foreign key column.
func (t *translator) columnRef(ref string) (string, error) {
	parts := strings.Split(ref, ".")
	at, ok := t.aliases[parts[0]]
	if !ok {
		return "", fmt.Errorf("unknown alias in reference %q", ref)
	}
	if len(parts) == 1 {
		if at.element != nil {
			return parts[0] + "." + at.element.Column, nil
		}
		return parts[0] + "." + idColumn(at.entity), nil
	}

	prefix := ""
	current := at.entity
	for i, seg := range parts[1:] {
		attr := current.Attribute(seg)
		if attr == nil {
			return "", fmt.Errorf("no attribute %q on entity %s in reference %q", seg, current.Name, ref)
		}
		last := i == len(parts)-2
		switch {
		case last && attr.Kind == metamodel.Basic:
			return parts[0] + "." + prefix + attr.Column, nil
		case last && attr.Kind.IsToOne():
			return parts[0] + "." + prefix + fkColumn(attr), nil
		case attr.Kind == metamodel.Embedded:
			prefix += attr.Column + "_"
			current = t.mm.Entity(attr.TargetType)
			if current == nil {
				return "", fmt.Errorf("embedded attribute %q in reference %q has no metadata", seg, ref)
			}
		default:
			return "", fmt.Errorf("reference %q navigates across association %q without a join", ref, seg)
		}
	}
	return "", fmt.Errorf("unresolvable reference %q", ref)
}

// resolveAssociation resolves a join path "alias.embedded...attr" to the
// owning entity, the embedded column prefix and the association attribute.
func (t *translator) resolveAssociation(path string) (*metamodel.EntityType, string, *metamodel.Attribute, error) {
	parts := strings.Split(path, ".")
	at, ok := t.aliases[parts[0]]
	if !ok || at.entity == nil {
		return nil, "", nil, fmt.Errorf("unknown alias in join path %q", path)
	}

	prefix := ""
	current := at.entity
	for i, seg := range parts[1:] {
		attr := current.Attribute(seg)
		if attr == nil {
			return nil, "", nil, fmt.Errorf("no attribute %q on entity %s in path %q", seg, current.Name, path)
		}
		if i == len(parts)-2 {
			return current, prefix, attr, nil
		}
		if attr.Kind != metamodel.Embedded {
			return nil, "", nil, fmt.Errorf("path %q navigates across association %q without a join", path, seg)
		}
		prefix += attr.Column + "_"
		current = t.mm.Entity(attr.TargetType)
		if current == nil {
			return nil, "", nil, fmt.Errorf("embedded attribute %q in path %q has no metadata", seg, path)
		}
	}
	return nil, "", nil, fmt.Errorf("join path %q names no attribute", path)
}

// resolveCollection resolves a collection path for membership and
// emptiness subqueries.
func (t *translator) resolveCollection(path string) (string, *metamodel.EntityType, *metamodel.Attribute, error) {
	owner, _, attr, err := t.resolveAssociation(path)
	if err != nil {
		return "", nil, nil, err
	}
	if !attr.IsCollection() {
		return "", nil, nil, fmt.Errorf("%s is not a collection", path)
	}
	return strings.SplitN(path, ".", 2)[0], owner, attr, nil
}

// isPathRef reports whether an identifier refers to a known alias or a
// path rooted at one, as opposed to a keyword.
func (t *translator) isPathRef(ref string) bool {
	head, _, _ := strings.Cut(ref, ".")
	_, ok := t.aliases[head]
	return ok
}

// slot returns the 1-based $ placeholder for the given parameter name,
// reusing the slot when the name repeats.
func (t *translator) slot(name string) int {
	for i, s := range t.slots {
		if s == name {
			return i + 1
		}
	}
	t.slots = append(t.slots, name)
	return len(t.slots)
}

func (t *translator) peekKeyword(kw string) bool {
	return t.pos < len(t.tokens) && t.tokens[t.pos].IsKeyword(kw)
}

func (t *translator) consumeKeyword(kw string) bool {
	if t.peekKeyword(kw) {
		t.pos++
		return true
	}
	return false
}

func (t *translator) nextIdent() (string, bool) {
	if t.pos < len(t.tokens) && t.tokens[t.pos].Kind == sqlparse.TokenIdent {
		text := t.tokens[t.pos].Text
		t.pos++
		return text, true
	}
	return "", false
}

func (t *translator) collectUntilKeyword(kw string) []sqlparse.Token {
	start := t.pos
	for t.pos < len(t.tokens) && !(t.tokens[t.pos].Depth == 0 && t.tokens[t.pos].IsKeyword(kw)) {
		t.pos++
	}
	return t.tokens[start:t.pos]
}

func (t *translator) collectUntilOrderBy() []sqlparse.Token {
	start := t.pos
	for t.pos < len(t.tokens) {
		tok := t.tokens[t.pos]
		if tok.Depth == 0 && tok.IsKeyword("order") &&
			t.pos+1 < len(t.tokens) && t.tokens[t.pos+1].IsKeyword("by") {
			break
		}
		t.pos++
	}
	return t.tokens[start:t.pos]
}

// fkColumn is the foreign key column of an owning to-one association.
func fkColumn(attr *metamodel.Attribute) string {
	if strings.HasSuffix(attr.Column, "_id") {
		return attr.Column
	}
	return attr.Column + "_id"
}

// inverseFKColumn is the foreign key column on the target side of a
// mapped-by or one-to-many association.
func inverseFKColumn(owner *metamodel.EntityType, attr *metamodel.Attribute) string {
	if attr.MappedBy != "" {
		return snake(attr.MappedBy) + "_id"
	}
	return snake(owner.Name) + "_id"
}

// linkTable is the collection table of a many-to-many or element
// collection attribute.
func linkTable(owner *metamodel.EntityType, attr *metamodel.Attribute) string {
	return owner.Table + "_" + attr.Column
}

func idColumn(entity *metamodel.EntityType) string {
	if ids := entity.IDAttributes(); len(ids) > 0 {
		return ids[0].Column
	}
	return "id"
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(s[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
