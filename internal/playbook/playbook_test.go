package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorelab/sore/internal/normalize"
)

func opp(strategy string, score float64) normalize.Opportunity {
	return normalize.Opportunity{Symbol: "SPY", Strategy: strategy, Score: score}
}

func TestRank_AvoidDominatesOverPrimary(t *testing.T) {
	lanes := LaneSet{Primary: []string{"iron_condor"}, Avoid: []string{"iron_condor"}}
	ranked := Rank([]normalize.Opportunity{opp("iron_condor", 80)}, lanes, LaneSet{})

	require.Len(t, ranked, 1)
	assert.Equal(t, LaneAvoid, ranked[0].PB.Lane)
	assert.InDelta(t, 48.0, ranked[0].PB.AdjustedScore, 0.001)
}

func TestRank_PrimaryAndSecondaryKeepFullScore(t *testing.T) {
	lanes := LaneSet{Primary: []string{"credit_spread"}, Secondary: []string{"income"}}
	ranked := Rank([]normalize.Opportunity{opp("credit_spread", 70), opp("income", 70)}, lanes, LaneSet{})

	for _, r := range ranked {
		assert.InDelta(t, 70.0, r.PB.AdjustedScore, 0.001)
	}
}

func TestRank_NeutralWithPopulatedPlaybookGetsPenalty(t *testing.T) {
	lanes := LaneSet{Primary: []string{"credit_spread"}}
	ranked := Rank([]normalize.Opportunity{opp("butterfly", 100)}, lanes, LaneSet{})

	require.Len(t, ranked, 1)
	assert.Equal(t, LaneNeutral, ranked[0].PB.Lane)
	assert.InDelta(t, 85.0, ranked[0].PB.AdjustedScore, 0.001)
}

func TestRank_NeutralWithEmptyPlaybookKeepsFullScore(t *testing.T) {
	ranked := Rank([]normalize.Opportunity{opp("butterfly", 60)}, LaneSet{}, LaneSet{})
	require.Len(t, ranked, 1)
	assert.InDelta(t, 60.0, ranked[0].PB.AdjustedScore, 0.001)
}

func TestRank_FallsBackToRegimeSuggestionWhenEnrichedEmpty(t *testing.T) {
	regime := LaneSet{Primary: []string{"credit_spread"}, Avoid: []string{"butterfly"}}
	ranked := Rank([]normalize.Opportunity{opp("butterfly", 80)}, LaneSet{}, regime)
	require.Len(t, ranked, 1)
	assert.Equal(t, LaneAvoid, ranked[0].PB.Lane)
}

func TestRank_TieBreakPrimaryBeatsSecondaryWithinEpsilon(t *testing.T) {
	lanes := LaneSet{Primary: []string{"credit_spread"}, Secondary: []string{"income"}}
	a := opp("income", 69.95)
	b := opp("credit_spread", 70.0)

	ranked := Rank([]normalize.Opportunity{a, b}, lanes, LaneSet{})
	require.Len(t, ranked, 2)
	assert.Equal(t, "credit_spread", ranked[0].Opportunity.Strategy)
}

func TestRank_SortsByAdjustedScoreDescWhenOutsideEpsilon(t *testing.T) {
	ranked := Rank([]normalize.Opportunity{opp("credit_spread", 40), opp("credit_spread", 90)}, LaneSet{}, LaneSet{})
	require.Len(t, ranked, 2)
	assert.InDelta(t, 90.0, ranked[0].PB.AdjustedScore, 0.001)
	assert.InDelta(t, 40.0, ranked[1].PB.AdjustedScore, 0.001)
}

func TestRank_DoesNotMutateInputOpportunities(t *testing.T) {
	input := opp("iron_condor", 80)
	lanes := LaneSet{Avoid: []string{"iron_condor"}}
	Rank([]normalize.Opportunity{input}, lanes, LaneSet{})
	assert.Equal(t, 80.0, input.Score)
}
