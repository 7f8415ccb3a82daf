package sqlparse

import "strings"

// aliasStopWords are keywords that terminate the from-clause alias position.
var aliasStopWords = map[string]bool{
	"where": true, "group": true, "order": true, "join": true, "left": true,
	"right": true, "inner": true, "outer": true, "full": true, "cross": true,
	"on": true, "fetch": true, "as": true, "limit": true, "offset": true,
	"having": true, "union": true,
}

// DetectAlias resolves the primary alias of the entity the query selects
// from. Subqueries do not participate: only from-clauses at parenthesis
// depth zero are considered, and the last one wins.
func DetectAlias(query string) string {
	tokens := Tokenize(query)
	alias := ""

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth != 0 || !t.IsKeyword("from") {
			continue
		}
		next := i + 1
		if next < len(tokens) && tokens[next].Kind == TokenLParen {
			// derived table: the alias follows the closing parenthesis
			next = skipParenGroup(tokens, next)
			idents := identsAfter(tokens, next, 2)
			if len(idents) > 0 && idents[0].IsKeyword("as") {
				idents = idents[1:]
			}
			if len(idents) > 0 && !aliasStopWords[strings.ToLower(idents[0].Text)] {
				alias = idents[0].Text
			}
			continue
		}
		idents := identsAfter(tokens, next, 3)
		if len(idents) == 0 {
			continue
		}
		rest := idents[1:]
		if len(rest) > 0 && rest[0].IsKeyword("as") {
			rest = rest[1:]
		}
		if len(rest) > 0 && !aliasStopWords[strings.ToLower(rest[0].Text)] {
			alias = rest[0].Text
		}
	}
	return alias
}

// identsAfter collects up to max consecutive identifier tokens starting at
// index from, stopping at anything that is not an identifier.
func identsAfter(tokens []Token, from, max int) []Token {
	var out []Token
	for i := from; i < len(tokens) && len(out) < max; i++ {
		if tokens[i].Kind == TokenComment {
			continue
		}
		if tokens[i].Kind != TokenIdent {
			break
		}
		out = append(out, tokens[i])
	}
	return out
}

// OuterJoinAliases returns the aliases declared by join clauses, used to
// decide whether a sort key must be qualified with the root alias.
func OuterJoinAliases(query string) map[string]bool {
	tokens := Tokenize(query)
	aliases := make(map[string]bool)

	for i := 0; i < len(tokens); i++ {
		if !tokens[i].IsKeyword("join") {
			continue
		}
		j := i + 1
		if j < len(tokens) && tokens[j].IsKeyword("fetch") {
			j++
		}
		if j >= len(tokens) || tokens[j].Kind != TokenIdent {
			continue
		}
		j++ // association path
		if j < len(tokens) && tokens[j].IsKeyword("as") {
			j++
		}
		if j < len(tokens) && tokens[j].Kind == TokenIdent &&
			!aliasStopWords[strings.ToLower(tokens[j].Text)] {
			aliases[tokens[j].Text] = true
		}
	}
	return aliases
}

// FunctionAliases returns aliases assigned to function-call results in the
// select list ("sum(x.total) as total"). Sort keys naming such an alias are
// emitted verbatim.
func FunctionAliases(query string) map[string]bool {
	tokens := Tokenize(query)
	aliases := make(map[string]bool)

	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].Kind != TokenIdent || tokens[i+1].Kind != TokenLParen {
			continue
		}
		j := skipParenGroup(tokens, i+1)
		if j < len(tokens) && tokens[j].IsKeyword("as") && j+1 < len(tokens) &&
			tokens[j+1].Kind == TokenIdent {
			aliases[tokens[j+1].Text] = true
		}
	}
	return aliases
}

// FieldAliases returns aliases assigned to plain field expressions
// ("u.name as userName").
func FieldAliases(query string) map[string]bool {
	tokens := Tokenize(query)
	aliases := make(map[string]bool)

	for i := 1; i+1 < len(tokens); i++ {
		if !tokens[i].IsKeyword("as") {
			continue
		}
		if tokens[i-1].Kind == TokenRParen {
			continue // function alias, reported by FunctionAliases
		}
		if tokens[i+1].Kind == TokenIdent {
			aliases[tokens[i+1].Text] = true
		}
	}
	return aliases
}

// skipParenGroup returns the index just past the group opened at the given
// LParen token index.
func skipParenGroup(tokens []Token, open int) int {
	depth := tokens[open].Depth
	for i := open + 1; i < len(tokens); i++ {
		if tokens[i].Kind == TokenRParen && tokens[i].Depth == depth {
			return i + 1
		}
	}
	return len(tokens)
}

// HasOrderBy reports whether the query carries a top-level ORDER BY clause.
// An order-by inside parentheses (window function or subselect) does not
// count.
func HasOrderBy(query string) bool {
	tokens := Tokenize(query)
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].Depth == 0 && tokens[i].IsKeyword("order") && tokens[i+1].IsKeyword("by") {
			return true
		}
	}
	return false
}

// HasConstructorExpression reports whether the select list instantiates a
// result type ("select new com.example.Dto(...)").
func HasConstructorExpression(query string) bool {
	tokens := Tokenize(query)
	seenSelect := false

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.IsKeyword("select") {
			seenSelect = true
			continue
		}
		if t.Depth == 0 && t.IsKeyword("from") {
			return false
		}
		if seenSelect && t.IsKeyword("new") &&
			i+2 < len(tokens) && tokens[i+1].Kind == TokenIdent && tokens[i+2].Kind == TokenLParen {
			return true
		}
	}
	return false
}

// Projection returns the text between SELECT [DISTINCT] and the matching
// top-level FROM, trimmed. Empty when the query has no select list.
func Projection(query string) string {
	tokens := Tokenize(query)
	start := -1

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth != 0 {
			continue
		}
		if t.IsKeyword("select") {
			start = t.Pos + len(t.Text)
			if i+1 < len(tokens) && tokens[i+1].IsKeyword("distinct") {
				start = tokens[i+1].Pos + len(tokens[i+1].Text)
			}
			continue
		}
		if start >= 0 && t.IsKeyword("from") {
			return strings.TrimSpace(query[start:t.Pos])
		}
	}
	return ""
}

// HasDistinct reports whether the select list is marked distinct.
func HasDistinct(query string) bool {
	tokens := Tokenize(query)
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].Depth == 0 && tokens[i].IsKeyword("select") && tokens[i+1].IsKeyword("distinct") {
			return true
		}
	}
	return false
}
