package reports

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "reports"), filepath.Join(dir, "decisions"), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestPersistAndListReports_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.PersistReport(ctx, "credit_spreads", Report{GeneratedAt: mustParseTime(t, "2026-01-01T00:00:00Z")})
	require.NoError(t, err)
	second, err := s.PersistReport(ctx, "credit_spreads", Report{GeneratedAt: mustParseTime(t, "2026-01-02T00:00:00Z")})
	require.NoError(t, err)

	metas, err := s.ListReports(ctx, "credit_spreads")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, second, metas[0].Name)
	assert.Equal(t, first, metas[1].Name)
}

func TestListReports_UnknownStrategyReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	metas, err := s.ListReports(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestGetReport_RoundTripsTrades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := Report{
		Trades:      []map[string]interface{}{{"symbol": "SPY"}},
		ReportStats: map[string]interface{}{"count": 1.0},
	}
	name, err := s.PersistReport(ctx, "iron_condor", report)
	require.NoError(t, err)

	loaded, err := s.GetReport(ctx, "iron_condor", name)
	require.NoError(t, err)
	require.Len(t, loaded.Trades, 1)
	assert.Equal(t, "SPY", loaded.Trades[0]["symbol"])
}

func TestPersistReject_IsIdempotentPerTradeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PersistReject(ctx, "analysis_20260101_000000.json", "SPY|...", "too risky"))
	require.NoError(t, s.PersistReject(ctx, "analysis_20260101_000000.json", "SPY|...", "changed my mind"))

	decisions, err := s.GetDecisions(ctx, "analysis_20260101_000000.json")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "too risky", decisions[0].Reason)
}

func TestGetDecisions_UnknownReportReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	decisions, err := s.GetDecisions(context.Background(), "never_written.json")
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}
