package progress

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorelab/sore/internal/normalize"
	"github.com/sorelab/sore/internal/playbook"
	"github.com/sorelab/sore/internal/providers"
	"github.com/sorelab/sore/internal/ratelimit"
	"github.com/sorelab/sore/internal/reports"
	"github.com/sorelab/sore/internal/scanner"
)

func testGenerator(t *testing.T) *Generator {
	dir := t.TempDir()
	rs, err := reports.New(filepath.Join(dir, "reports"), filepath.Join(dir, "decisions"), zerolog.Nop())
	require.NoError(t, err)
	limiter := ratelimit.New(ratelimit.Config{MinDelay: time.Millisecond, MaxRetries: 0}, zerolog.Nop())
	sc := scanner.New(limiter, zerolog.Nop())
	return NewGenerator(sc, rs, zerolog.Nop())
}

func stepReturning(id string, optional bool, candidates []providers.Candidate, err error) scanner.StepDef {
	return scanner.StepDef{
		ID: id, Label: id, ProviderTag: "demo", SourceType: normalize.SourceOptions,
		Optional: optional, BaseTimeout: time.Second,
		Run: func(ctx context.Context) ([]providers.Candidate, error) { return candidates, err },
	}
}

func TestGenerateReport_SuccessEndsWithDoneAndPersistsFile(t *testing.T) {
	g := testGenerator(t)
	steps := []scanner.StepDef{
		stepReturning("a", false, []providers.Candidate{{Symbol: "SPY", Computed: map[string]float64{"score": 90}}}, nil),
	}

	events := g.GenerateReport(context.Background(), GenerateParams{StrategyID: "income", Steps: steps, Level: scanner.LevelBalanced})
	got := drain(t, events, time.Second)
	require.NotEmpty(t, got)
	assert.Equal(t, EventStatus, got[0].Type)

	last := got[len(got)-1]
	assert.Equal(t, EventDone, last.Type)
	require.NotEmpty(t, last.Filename)

	metas, err := g.reports.ListReports(context.Background(), "income")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, last.Filename, metas[0].Name)
}

func TestGenerateReport_NonOptionalFailureEndsWithError(t *testing.T) {
	g := testGenerator(t)
	steps := []scanner.StepDef{
		stepReturning("a", false, nil, errors.New("provider down")),
	}

	events := g.GenerateReport(context.Background(), GenerateParams{StrategyID: "income", Steps: steps, Level: scanner.LevelBalanced})
	got := drain(t, events, time.Second)
	require.NotEmpty(t, got)

	terminal := got[len(got)-1]
	assert.Equal(t, EventError, terminal.Type)
	assert.NotEmpty(t, terminal.TraceID)

	metas, err := g.reports.ListReports(context.Background(), "income")
	require.NoError(t, err)
	assert.Empty(t, metas, "a generation failure must leave no partial report file")
}

func TestGenerateReport_CancellationStopsWithoutPersistingOrTerminalEvent(t *testing.T) {
	g := testGenerator(t)
	release := make(chan struct{})
	steps := []scanner.StepDef{
		{
			ID: "slow", Label: "slow", ProviderTag: "demo", SourceType: normalize.SourceOptions,
			BaseTimeout: time.Minute,
			Run: func(ctx context.Context) ([]providers.Candidate, error) {
				close(release)
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := g.GenerateReport(ctx, GenerateParams{StrategyID: "income", Steps: steps, Level: scanner.LevelBalanced})

	<-release
	cancel()

	got := drain(t, events, time.Second)
	for _, ev := range got {
		assert.NotEqual(t, EventDone, ev.Type)
		assert.NotEqual(t, EventError, ev.Type)
	}

	metas, err := g.reports.ListReports(context.Background(), "income")
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestGenerateReport_AppliesPlaybookRankingToTrades(t *testing.T) {
	g := testGenerator(t)
	steps := []scanner.StepDef{
		stepReturning("a", false, []providers.Candidate{
			{Symbol: "SPY", StrategyID: "iron_condor", Computed: map[string]float64{"score": 80}},
		}, nil),
	}

	events := g.GenerateReport(context.Background(), GenerateParams{
		StrategyID: "income", Steps: steps, Level: scanner.LevelBalanced,
		Enriched: playbook.LaneSet{Avoid: []string{"iron_condor"}},
	})
	got := drain(t, events, time.Second)
	last := got[len(got)-1]
	require.Equal(t, EventDone, last.Type)

	report, err := g.reports.GetReport(context.Background(), "income", last.Filename)
	require.NoError(t, err)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, string(playbook.LaneAvoid), report.Trades[0]["lane"])
	assert.InDelta(t, 48.0, report.Trades[0]["adjusted_score"], 0.001)
}
