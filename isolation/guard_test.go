package isolation

import (
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestEnsureIsolationAddsFilterWhenMissing(t *testing.T) {
	query := "SELECT id, name FROM bookings"
	scoped, params, err := EnsureIsolation(query, nil, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if scoped != "SELECT id, name FROM bookings WHERE tenant_id = ?" {
		t.Fatalf("unexpected query: %q", scoped)
	}
	if len(params) != 1 || params[0] != "tenant-a" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestEnsureIsolationConjoinsExistingFilter(t *testing.T) {
	query := "SELECT id FROM bookings WHERE status = ?"
	scoped, params, err := EnsureIsolation(query, []any{"confirmed"}, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if scoped != "SELECT id FROM bookings WHERE status = ? AND tenant_id = ?" {
		t.Fatalf("unexpected query: %q", scoped)
	}
	if len(params) != 2 || params[1] != "tenant-a" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestEnsureIsolationIsIdempotent(t *testing.T) {
	query := "SELECT id FROM bookings WHERE status = $1"
	scoped, params, err := EnsureIsolation(query, []any{"confirmed"}, "tenant-a")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	again, againParams, err := EnsureIsolation(scoped, params, "tenant-a")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if again != scoped {
		t.Fatalf("expected stable query, got %q then %q", scoped, again)
	}
	if len(againParams) != len(params) {
		t.Fatalf("expected stable params, got %v then %v", params, againParams)
	}
}

func TestEnsureIsolationNumbersDollarPlaceholders(t *testing.T) {
	query := "SELECT id FROM bookings WHERE status = $1 AND starts_at > $2"
	scoped, params, err := EnsureIsolation(query, []any{"confirmed", "2026-01-01"}, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(scoped, "tenant_id = $3") {
		t.Fatalf("expected $3 placeholder, got %q", scoped)
	}
	if len(params) != 3 || params[2] != "tenant-a" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestEnsureIsolationRespectsExistingTenantPredicate(t *testing.T) {
	cases := []string{
		"SELECT id FROM bookings WHERE tenant_id = $1",
		"SELECT id FROM bookings WHERE TENANT_ID = $1 AND status = $2",
		"SELECT id FROM bookings b WHERE b.tenant_id = ? AND b.status = ?",
	}
	for _, query := range cases {
		scoped, _, err := EnsureIsolation(query, []any{"x", "y"}, "tenant-a")
		if err != nil {
			t.Fatalf("%q: %v", query, err)
		}
		if scoped != query {
			t.Fatalf("expected %q unchanged, got %q", query, scoped)
		}
	}
}

func TestEnsureIsolationIgnoresLookalikeColumns(t *testing.T) {
	query := "SELECT id FROM bookings WHERE parent_tenant_identifier = ?"
	scoped, params, err := EnsureIsolation(query, []any{"p"}, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(scoped, "AND tenant_id = ?") {
		t.Fatalf("expected injected predicate, got %q", scoped)
	}
	if len(params) != 2 {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestEnsureIsolationSkipsStringLiterals(t *testing.T) {
	query := "SELECT id FROM notes WHERE body = 'mentions tenant_id inline'"
	scoped, _, err := EnsureIsolation(query, nil, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(scoped, "AND tenant_id = ?") {
		t.Fatalf("expected injected predicate, got %q", scoped)
	}
}

func TestEnsureIsolationInsertsBeforeTrailingClauses(t *testing.T) {
	query := "SELECT id FROM bookings ORDER BY starts_at DESC LIMIT 10"
	scoped, _, err := EnsureIsolation(query, nil, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "SELECT id FROM bookings WHERE tenant_id = ? ORDER BY starts_at DESC LIMIT 10"
	if scoped != want {
		t.Fatalf("expected %q, got %q", want, scoped)
	}
}

func TestEnsureIsolationConjoinsBeforeTrailingClauses(t *testing.T) {
	query := "SELECT id FROM bookings WHERE status = ? ORDER BY starts_at"
	scoped, _, err := EnsureIsolation(query, []any{"confirmed"}, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "SELECT id FROM bookings WHERE status = ? AND tenant_id = ? ORDER BY starts_at"
	if scoped != want {
		t.Fatalf("expected %q, got %q", want, scoped)
	}
}

func TestEnsureIsolationIgnoresNestedSubqueryKeywords(t *testing.T) {
	query := "SELECT id FROM bookings WHERE student_id IN (SELECT id FROM students WHERE active = ?)"
	scoped, _, err := EnsureIsolation(query, []any{true}, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(scoped, "AND tenant_id = ?") {
		t.Fatalf("expected predicate appended at top level, got %q", scoped)
	}
}

func TestEnsureIsolationScopesOuterQueryDespiteSubqueryPredicate(t *testing.T) {
	query := "SELECT id FROM bookings WHERE student_id IN (SELECT id FROM students WHERE tenant_id = ?)"
	scoped, params, err := EnsureIsolation(query, []any{"tenant-a"}, "tenant-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(scoped, "AND tenant_id = ?") {
		t.Fatalf("expected outer predicate despite subquery filter, got %q", scoped)
	}
	if len(params) != 2 || params[1] != "tenant-a" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestEnsureIsolationValidatesInput(t *testing.T) {
	if _, _, err := EnsureIsolation("", nil, "tenant-a"); err == nil {
		t.Fatal("expected error for empty query")
	}
	_, _, err := EnsureIsolation("SELECT 1", nil, "")
	if err == nil {
		t.Fatal("expected error for empty tenant id")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %s", rich.Category)
	}
}
