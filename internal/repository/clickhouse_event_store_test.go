package repository

import (
	"context"
	"strings"
	"testing"

	"CoinTrend/internal/domain/models"
)

func TestUserEventsQuery(t *testing.T) {
	q, args := userEventsQuery("SELECT * FROM e", "u1", models.MatchDirectional, 5)
	if !strings.Contains(q, "preferences[?] > 0 AND preferences[?] <= probability") {
		t.Fatalf("directional condition missing: %s", q)
	}
	if !strings.HasSuffix(q, "ORDER BY fired_at DESC LIMIT ?") {
		t.Fatalf("unexpected tail: %s", q)
	}
	if got, want := len(args), strings.Count(q, "?"); got != want {
		t.Fatalf("args = %d, placeholders = %d", got, want)
	}
	if args[len(args)-1] != 5 {
		t.Fatalf("limit arg = %v", args[len(args)-1])
	}

	q, args = userEventsQuery("SELECT * FROM e", "u1", models.MatchMagnitude, 0)
	if strings.Contains(q, "LIMIT") {
		t.Fatalf("limit 0 should return everything: %s", q)
	}
	if !strings.Contains(q, "abs(preferences[?]) <= abs(probability)") {
		t.Fatalf("magnitude condition missing: %s", q)
	}
	if len(args) != strings.Count(q, "?") {
		t.Fatalf("args = %d, placeholders = %d", len(args), strings.Count(q, "?"))
	}
}

func TestEventsSchema(t *testing.T) {
	ddl := EventsSchema("events_test")
	if len(ddl) != 1 || !strings.Contains(ddl[0], "CREATE TABLE IF NOT EXISTS events_test") {
		t.Fatalf("unexpected ddl %v", ddl)
	}
	if !strings.Contains(ddl[0], "Map(String, Float64)") {
		t.Fatal("preferences must be a map column")
	}
}

type recordingSchema struct{ stmts []string }

func (r *recordingSchema) InitSchema(_ context.Context, stmts ...string) error {
	r.stmts = append(r.stmts, stmts...)
	return nil
}

func TestCHEventStore_InitRunsEventsDDL(t *testing.T) {
	rs := &recordingSchema{}
	s := &CHEventStore{ch: rs, table: "events_init"}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(rs.stmts) != 1 || !strings.Contains(rs.stmts[0], "CREATE TABLE IF NOT EXISTS events_init") {
		t.Fatalf("statements = %v", rs.stmts)
	}
}
