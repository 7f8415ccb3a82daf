package sqlparse

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a token produced by the tokenizer.
type TokenKind int

const (
	TokenIdent TokenKind = iota
	TokenNumber
	TokenString
	TokenLParen
	TokenRParen
	TokenComma
	TokenOperator
	TokenComment
)

// Token is one lexical unit of a query string. Pos is the byte offset of the
// token start; Depth is the parenthesis nesting level the token appears at.
type Token struct {
	Kind  TokenKind
	Text  string
	Pos   int
	Depth int
}

// IsKeyword reports a case-insensitive match against the given keyword.
func (t Token) IsKeyword(kw string) bool {
	return t.Kind == TokenIdent && strings.EqualFold(t.Text, kw)
}

// Tokenize splits a query string into tokens, preserving positions and
// parenthesis depth. Quoted literals become single TokenString tokens; line
// comments (--) and block comments are emitted as TokenComment. Identifiers
// may contain Unicode letters, digits, '_', '$' and '.'.
func Tokenize(query string) []Token {
	var tokens []Token
	depth := 0
	i := 0

	for i < len(query) {
		c := query[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '\'' || c == '"':
			end := scanQuoted(query, i)
			tokens = append(tokens, Token{Kind: TokenString, Text: query[i:end], Pos: i, Depth: depth})
			i = end

		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query)
			} else {
				end += i
			}
			tokens = append(tokens, Token{Kind: TokenComment, Text: query[i:end], Pos: i, Depth: depth})
			i = end

		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query)
			} else {
				end += i + 4
			}
			tokens = append(tokens, Token{Kind: TokenComment, Text: query[i:end], Pos: i, Depth: depth})
			i = end

		case c == '(':
			tokens = append(tokens, Token{Kind: TokenLParen, Text: "(", Pos: i, Depth: depth})
			depth++
			i++

		case c == ')':
			if depth > 0 {
				depth--
			}
			tokens = append(tokens, Token{Kind: TokenRParen, Text: ")", Pos: i, Depth: depth})
			i++

		case c == ',':
			tokens = append(tokens, Token{Kind: TokenComma, Text: ",", Pos: i, Depth: depth})
			i++

		case c >= '0' && c <= '9':
			end := i
			for end < len(query) && (isDigit(query[end]) || query[end] == '.') {
				end++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Text: query[i:end], Pos: i, Depth: depth})
			i = end

		case isIdentStart(query, i):
			end := scanIdent(query, i)
			tokens = append(tokens, Token{Kind: TokenIdent, Text: query[i:end], Pos: i, Depth: depth})
			i = end

		default:
			tokens = append(tokens, Token{Kind: TokenOperator, Text: string(c), Pos: i, Depth: depth})
			i++
		}
	}
	return tokens
}

// scanQuoted returns the index just past the closing quote, treating a
// doubled quote character as an escaped quote inside the literal.
func scanQuoted(s string, start int) int {
	quote := s[start]
	i := start + 1
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}

func scanIdent(s string, start int) int {
	i := start
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isIdentRune(r) && r != '.' {
			break
		}
		i += size
	}
	return i
}

func isIdentStart(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

// isIdentRune accepts the locale-aware identifier character class: Unicode
// letters and digits plus '_' and '$'.
func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
