// Package playbook implements C7: re-ranking normalized opportunities by a
// regime-aware, playbook-weighted score.
package playbook

import (
	"math"
	"sort"

	"github.com/sorelab/sore/internal/normalize"
	"github.com/sorelab/sore/internal/providers"
)

// Lane is an opportunity's classification against the active playbook.
type Lane string

const (
	LanePrimary   Lane = "primary"
	LaneSecondary Lane = "secondary"
	LaneNeutral   Lane = "neutral"
	LaneAvoid     Lane = "avoid"
)

// lanePriority orders lanes for tie-breaking: primary < secondary < neutral < avoid.
var lanePriority = map[Lane]int{LanePrimary: 0, LaneSecondary: 1, LaneNeutral: 2, LaneAvoid: 3}

const tieEpsilon = 0.1

// Annotation is the ranker's per-opportunity verdict, attached as _pb
// without mutating the opportunity it describes.
type Annotation struct {
	BaseScore     float64
	AdjustedScore float64
	Multiplier    float64
	Lane          Lane
	Reasons       []string
}

// Ranked pairs an opportunity with its ranking annotation.
type Ranked struct {
	Opportunity normalize.Opportunity
	PB          Annotation
}

// LaneSet is a playbook's three lane sets over canonical strategy tags.
type LaneSet struct {
	Primary   []string
	Secondary []string
	Avoid     []string
}

func (ls LaneSet) empty() bool {
	return len(ls.Primary) == 0 && len(ls.Secondary) == 0 && len(ls.Avoid) == 0
}

// FromPlaybook builds a LaneSet from C1's enriched Playbook.
func FromPlaybook(pb providers.Playbook) LaneSet {
	return LaneSet{
		Primary:   strategiesOf(pb.Primary),
		Secondary: strategiesOf(pb.Secondary),
		Avoid:     strategiesOf(pb.Avoid),
	}
}

// FromRegimeSuggestion builds a LaneSet from the regime's own lightweight
// suggestion (primary+avoid only; secondary stays empty).
func FromRegimeSuggestion(s providers.SuggestedPlaybook) LaneSet {
	return LaneSet{Primary: s.Primary, Avoid: s.Avoid}
}

func strategiesOf(entries []providers.PlaybookLaneEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, normalize.CanonicalizeStrategy(e.Strategy))
	}
	return out
}

// Rank classifies and re-scores every opportunity under active (the
// enriched playbook when it has any entry, otherwise the regime's
// suggestion), then sorts by adjusted score with the lane-priority tie-break chain below.
func Rank(opportunities []normalize.Opportunity, enriched LaneSet, regimeSuggested LaneSet) []Ranked {
	active := enriched
	if active.empty() {
		active = regimeSuggested
	}

	ranked := make([]Ranked, 0, len(opportunities))
	for _, opp := range opportunities {
		ranked = append(ranked, classify(opp, active))
	}

	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	return ranked
}

func classify(opp normalize.Opportunity, active LaneSet) Ranked {
	strategy := normalize.CanonicalizeStrategy(opp.Strategy)

	lane := LaneNeutral
	var reasons []string
	switch {
	case contains(active.Avoid, strategy):
		lane = LaneAvoid
		reasons = append(reasons, "strategy matches avoid lane")
	case contains(active.Primary, strategy):
		lane = LanePrimary
		reasons = append(reasons, "strategy matches primary lane")
	case contains(active.Secondary, strategy):
		lane = LaneSecondary
		reasons = append(reasons, "strategy matches secondary lane")
	default:
		reasons = append(reasons, "strategy matches no declared lane")
	}

	multiplier := multiplierFor(lane, !active.empty())
	adjusted := round1(clamp(opp.Score*multiplier, 0, 100))

	return Ranked{
		Opportunity: opp,
		PB: Annotation{
			BaseScore:     opp.Score,
			AdjustedScore: adjusted,
			Multiplier:    multiplier,
			Lane:          lane,
			Reasons:       reasons,
		},
	}
}

// multiplierFor implements the lane confidence-multiplier table.
func multiplierFor(lane Lane, playbookPopulated bool) float64 {
	switch lane {
	case LaneAvoid:
		return 0.60
	case LaneNeutral:
		if playbookPopulated {
			return 0.85
		}
		return 1.00
	default: // primary, secondary
		return 1.00
	}
}

func less(a, b Ranked) bool {
	if math.Abs(a.PB.AdjustedScore-b.PB.AdjustedScore) > tieEpsilon {
		return a.PB.AdjustedScore > b.PB.AdjustedScore
	}
	if lanePriority[a.PB.Lane] != lanePriority[b.PB.Lane] {
		return lanePriority[a.PB.Lane] < lanePriority[b.PB.Lane]
	}
	if a.PB.BaseScore != b.PB.BaseScore {
		return a.PB.BaseScore > b.PB.BaseScore
	}
	if c := compareNullableDesc(a.Opportunity.KeyMetrics.Liquidity, b.Opportunity.KeyMetrics.Liquidity); c != 0 {
		return c > 0
	}
	if c := compareNullableDesc(a.Opportunity.RoR, b.Opportunity.RoR); c != 0 {
		return c > 0
	}
	return false
}

func compareNullableDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
