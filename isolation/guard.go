// Package isolation enforces tenant scoping on SQL queries. The guard is the
// single boundary that keeps a query missing its tenant predicate from ever
// reaching a tenant database unscoped.
package isolation

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-tenant/core"
)

const DefaultColumn = "tenant_id"

type PlaceholderStyle string

const (
	// PlaceholderDollar is the postgres $N positional style.
	PlaceholderDollar PlaceholderStyle = "dollar"
	// PlaceholderQuestion is the sqlite/mysql ? style.
	PlaceholderQuestion PlaceholderStyle = "question"
)

type Guard struct {
	Column string
}

func NewGuard() *Guard {
	return &Guard{Column: DefaultColumn}
}

// EnsureIsolation returns the query with exactly one tenant predicate. A
// query already carrying a tenant comparison is returned unchanged, so the
// operation is idempotent. Otherwise the predicate is conjoined into the
// filter (or a filter is added) and tenantID is appended to params once,
// preserving the alignment of every existing positional parameter.
func (g *Guard) EnsureIsolation(query string, params []any, tenantID string) (string, []any, error) {
	column := DefaultColumn
	if g != nil && strings.TrimSpace(g.Column) != "" {
		column = strings.TrimSpace(g.Column)
	}
	if strings.TrimSpace(query) == "" {
		return "", nil, badInputError("query is required")
	}
	if strings.TrimSpace(tenantID) == "" {
		return "", nil, badInputError("tenant id is required")
	}

	stmt := parseStatement(query)
	if stmt.whereContains(column) {
		return query, append([]any(nil), params...), nil
	}

	placeholder := "?"
	if stmt.placeholders == PlaceholderDollar {
		placeholder = "$" + strconv.Itoa(len(params)+1)
	}
	predicate := column + " = " + placeholder
	scoped := stmt.withPredicate(predicate)
	scopedParams := append(append([]any(nil), params...), tenantID)
	return scoped, scopedParams, nil
}

// EnsureIsolation applies the default guard.
func EnsureIsolation(query string, params []any, tenantID string) (string, []any, error) {
	return NewGuard().EnsureIsolation(query, params, tenantID)
}

func badInputError(message string) error {
	return goerrors.New(fmt.Sprintf("isolation: %s", message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TenantErrorBadInput)
}

// statement is the structural decomposition the guard operates on: head is
// everything before the filter, where is the filter expression (without the
// WHERE keyword), tail is the trailing clauses (GROUP BY, ORDER BY, LIMIT,
// ...). Working on the decomposition rather than the raw string removes the
// ambiguity of substring matching against literals or column names like
// "non_tenant_id".
type statement struct {
	head         string
	where        string
	tail         string
	placeholders PlaceholderStyle
}

var tailKeywords = []string{"group", "order", "limit", "offset", "having", "fetch", "for", "returning", "union", "except", "intersect"}

func parseStatement(query string) statement {
	stmt := statement{placeholders: detectPlaceholderStyle(query)}

	whereStart, whereEnd := -1, -1
	for _, token := range scanTokens(query) {
		if token.depth != 0 {
			continue
		}
		word := strings.ToLower(token.text)
		if word == "where" && whereStart < 0 {
			whereStart = token.start
			continue
		}
		if whereStart >= 0 && whereEnd < 0 && isTailKeyword(word) {
			whereEnd = token.start
		}
		if whereStart < 0 && isTailKeyword(word) && stmt.tail == "" {
			// no filter; tail begins at the first trailing keyword
			stmt.head = query[:token.start]
			stmt.tail = query[token.start:]
		}
	}

	if whereStart >= 0 {
		if whereEnd < 0 {
			whereEnd = len(query)
		}
		stmt.head = query[:whereStart]
		stmt.where = query[whereStart+len("where") : whereEnd]
		stmt.tail = query[whereEnd:]
		return stmt
	}
	if stmt.head == "" && stmt.tail == "" {
		stmt.head = query
	}
	return stmt
}

func (s statement) whereContains(column string) bool {
	if strings.TrimSpace(s.where) == "" {
		return false
	}
	target := strings.ToLower(column)
	for _, tok := range scanTokens(s.where) {
		// a predicate inside parens belongs to a subquery or grouped
		// expression and does not scope this statement's table
		if tok.depth != 0 {
			continue
		}
		name := strings.ToLower(tok.text)
		// accept both bare and alias-qualified references
		if name != target && !strings.HasSuffix(name, "."+target) {
			continue
		}
		end := tok.start + len(tok.text)
		if comparisonFollows(s.where, end) || comparisonPrecedes(s.where, tok.start) {
			return true
		}
	}
	return false
}

var comparisonKeywords = []string{"in", "is", "like", "between", "not"}

// comparisonFollows reports whether the text after a column reference opens
// a comparison: an operator or one of the predicate keywords.
func comparisonFollows(input string, from int) bool {
	rest := strings.TrimLeft(input[from:], " \t\n")
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '=', '<', '>', '!':
		return true
	}
	lower := strings.ToLower(rest)
	for _, keyword := range comparisonKeywords {
		if !strings.HasPrefix(lower, keyword) {
			continue
		}
		if len(lower) == len(keyword) {
			return true
		}
		switch lower[len(keyword)] {
		case ' ', '\t', '\n', '(':
			return true
		}
	}
	return false
}

// comparisonPrecedes covers the flipped form, e.g. "? = tenant_id".
func comparisonPrecedes(input string, until int) bool {
	rest := strings.TrimRight(input[:until], " \t\n")
	if rest == "" {
		return false
	}
	switch rest[len(rest)-1] {
	case '=', '<', '>':
		return true
	}
	return false
}

func (s statement) withPredicate(predicate string) string {
	if strings.TrimSpace(s.where) != "" {
		where := strings.TrimRight(s.where, " \t\n")
		return s.head + "WHERE" + where + " AND " + predicate + ensureLeadingSpace(s.tail)
	}
	head := strings.TrimRight(s.head, " \t\n")
	return head + " WHERE " + predicate + ensureLeadingSpace(s.tail)
}

func ensureLeadingSpace(tail string) string {
	if tail == "" {
		return ""
	}
	if strings.HasPrefix(tail, " ") || strings.HasPrefix(tail, "\n") || strings.HasPrefix(tail, "\t") {
		return tail
	}
	return " " + tail
}

func isTailKeyword(word string) bool {
	for _, keyword := range tailKeywords {
		if word == keyword {
			return true
		}
	}
	return false
}

func detectPlaceholderStyle(query string) PlaceholderStyle {
	inSingle := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			inSingle = !inSingle
			continue
		}
		if inSingle {
			continue
		}
		if ch == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			return PlaceholderDollar
		}
	}
	return PlaceholderQuestion
}

type token struct {
	text  string
	start int
	depth int
}

// scanTokens yields identifier-like tokens with their paren depth, skipping
// string literals and quoted identifiers.
func scanTokens(input string) []token {
	var tokens []token
	depth := 0
	inSingle := false
	inDouble := false
	wordStart := -1

	flush := func(end int) {
		if wordStart >= 0 {
			tokens = append(tokens, token{
				text:  input[wordStart:end],
				start: wordStart,
				depth: depth,
			})
			wordStart = -1
		}
	}

	for i, r := range input {
		switch {
		case inSingle:
			if r == '\'' {
				inSingle = false
			}
		case inDouble:
			if r == '"' {
				inDouble = false
			}
		case r == '\'':
			flush(i)
			inSingle = true
		case r == '"':
			flush(i)
			inDouble = true
		case r == '(':
			flush(i)
			depth++
		case r == ')':
			flush(i)
			depth--
		case unicode.IsLetter(r) || r == '_' || (wordStart >= 0 && (unicode.IsDigit(r) || r == '.')):
			if wordStart < 0 {
				wordStart = i
			}
		default:
			flush(i)
		}
	}
	flush(len(input))
	return tokens
}

var _ core.IsolationGuard = (*Guard)(nil)
