// Package signals holds the dashboard signal set: the fragility series,
// cross-asset correlation breaks, venue liquidity and the cascade scenarios.
// It imports nothing from internal/ and can be tested without a network.
package signals

import (
	"fmt"
	"sort"
	"strings"
)

// ─── CONSTANTS ────────────────────────────────────────────────────────────────

const (
	yellowThreshold = 40.0 // score >= 40 → YELLOW
	redThreshold    = 65.0 // score >= 65 → RED

	mediumDrift = 0.3 // drift > 0.3 → medium
	highDrift   = 0.8 // drift > 0.8 → high
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// RiskState is the three-colour classification of a fragility score.
type RiskState string

const (
	StateGreen  RiskState = "GREEN"
	StateYellow RiskState = "YELLOW"
	StateRed    RiskState = "RED"
)

// Severity grades a correlation break by its drift.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Trend describes how a venue's order-book depth is moving.
type Trend string

const (
	TrendStable    Trend = "stable"
	TrendDecay     Trend = "decay"
	TrendExpanding Trend = "expanding"
)

// FragilityMetric is one point of the fragility series.
type FragilityMetric struct {
	Date            string  `json:"date"`
	Score           float64 `json:"score"`
	TailProbability float64 `json:"tail_probability"`
}

// CorrelationBreak compares a pair's historical correlation with the current
// one. Drift is |current - historical|.
type CorrelationBreak struct {
	Pair       [2]string `json:"pair"`
	Historical float64   `json:"historical"`
	Current    float64   `json:"current"`
	Drift      float64   `json:"drift"`
	Severity   Severity  `json:"severity"`
}

// LiquiditySignal is the remaining depth (percent of normal) at one venue.
type LiquiditySignal struct {
	Venue       string  `json:"venue"`
	Depth       float64 `json:"depth"`
	Trend       Trend   `json:"trend"`
	StressScore float64 `json:"stress_score"`
}

// CascadeScenario is a trigger event followed by the chain of effects it
// propagates, in order.
type CascadeScenario struct {
	ID      int      `json:"id"`
	Trigger string   `json:"trigger"`
	Chain   []string `json:"chain"`
}

// Dashboard is the full signal snapshot rendered by the dashboard.
type Dashboard struct {
	Score      float64            `json:"score"`
	State      RiskState          `json:"state"`
	Fragility  []FragilityMetric  `json:"fragility"`
	Breaks     []CorrelationBreak `json:"breaks"`
	Liquidity  []LiquiditySignal  `json:"liquidity"`
	Scenarios  []CascadeScenario  `json:"scenarios"`
	Critical   int                `json:"critical"`
	MarketNote string             `json:"market_note"`
}

// ─── CLASSIFICATION ───────────────────────────────────────────────────────────

// ClassifyFragility maps a 0–100 fragility score onto a RiskState.
//
//	GREEN   score < 40
//	YELLOW  40 <= score < 65
//	RED     score >= 65
func ClassifyFragility(score float64) RiskState {
	switch {
	case score >= redThreshold:
		return StateRed
	case score >= yellowThreshold:
		return StateYellow
	default:
		return StateGreen
	}
}

// ClassifyDrift grades a correlation drift.
func ClassifyDrift(drift float64) Severity {
	switch {
	case drift > highDrift:
		return SeverityHigh
	case drift > mediumDrift:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// NewBreak builds a CorrelationBreak with drift and severity derived from the
// two correlations.
func NewBreak(a, b string, historical, current float64) CorrelationBreak {
	drift := current - historical
	if drift < 0 {
		drift = -drift
	}
	drift = round2(drift)
	return CorrelationBreak{
		Pair:       [2]string{a, b},
		Historical: historical,
		Current:    current,
		Drift:      drift,
		Severity:   ClassifyDrift(drift),
	}
}

// NewLiquidity derives the stress score of a venue from its depth.
func NewLiquidity(venue string, depth float64, trend Trend) LiquiditySignal {
	return LiquiditySignal{
		Venue:       venue,
		Depth:       depth,
		Trend:       trend,
		StressScore: 100 - clampPct(depth),
	}
}

// ─── AGGREGATES ───────────────────────────────────────────────────────────────

// Latest returns the most recent point of the series, or false when empty.
func Latest(series []FragilityMetric) (FragilityMetric, bool) {
	if len(series) == 0 {
		return FragilityMetric{}, false
	}
	return series[len(series)-1], true
}

// SortBreaks orders breaks by drift descending, ties broken by pair name.
func SortBreaks(breaks []CorrelationBreak) {
	sort.Slice(breaks, func(a, b int) bool {
		if breaks[a].Drift != breaks[b].Drift {
			return breaks[a].Drift > breaks[b].Drift
		}
		return breaks[a].Pair[0]+breaks[a].Pair[1] < breaks[b].Pair[0]+breaks[b].Pair[1]
	})
}

// FilterBySeverity returns the breaks matching any of the given severities,
// preserving order.
func FilterBySeverity(breaks []CorrelationBreak, levels ...Severity) []CorrelationBreak {
	set := make(map[Severity]struct{}, len(levels))
	for _, l := range levels {
		set[l] = struct{}{}
	}
	out := make([]CorrelationBreak, 0, len(breaks))
	for _, b := range breaks {
		if _, ok := set[b.Severity]; ok {
			out = append(out, b)
		}
	}
	return out
}

// CriticalCount is the number of high-severity breaks plus decaying venues.
func CriticalCount(breaks []CorrelationBreak, liquidity []LiquiditySignal) int {
	n := len(FilterBySeverity(breaks, SeverityHigh))
	for _, l := range liquidity {
		if l.Trend == TrendDecay {
			n++
		}
	}
	return n
}

// ─── SNAPSHOT ─────────────────────────────────────────────────────────────────

// DefaultMarketNote is the market commentary the insight briefing analyses
// when the caller supplies none.
const DefaultMarketNote = "Yield curve inversion deepening, Repo spreads widening, Crude Oil volatility spikes, Liquidity thinning in corporate bond markets."

// Snapshot returns the fixed dashboard dataset with every derived field
// computed. Each call returns fresh slices.
func Snapshot() Dashboard {
	series := []FragilityMetric{
		{Date: "T-6", Score: 24, TailProbability: 0.02},
		{Date: "T-5", Score: 28, TailProbability: 0.03},
		{Date: "T-4", Score: 35, TailProbability: 0.05},
		{Date: "T-3", Score: 42, TailProbability: 0.08},
		{Date: "T-2", Score: 38, TailProbability: 0.06},
		{Date: "T-1", Score: 55, TailProbability: 0.15},
		{Date: "Now", Score: 72.4, TailProbability: 0.28},
	}

	breaks := []CorrelationBreak{
		NewBreak("USD/JPY", "Gold", -0.85, 0.12),
		NewBreak("S&P 500", "Crypto", 0.15, 0.78),
		NewBreak("US10Y", "BTC", -0.32, -0.05),
	}
	SortBreaks(breaks)

	liquidity := []LiquiditySignal{
		NewLiquidity("CME Treasury Futures", 45, TrendDecay),
		NewLiquidity("Eurex Bunds", 62, TrendStable),
		NewLiquidity("NY Fed Repo Window", 28, TrendDecay),
	}

	scenarios := []CascadeScenario{
		{ID: 1, Trigger: "Tether De-peg (10%)", Chain: []string{
			"Crypto Liquidation", "Stablecoin Exodus", "Repo Market Tightening", "Treasury Vol Spike",
		}},
		{ID: 2, Trigger: "Major Exchange Cyber-Attack", Chain: []string{
			"Order Book Vanishing", "Payment Rails Latency", "FX Dislocation", "Central Bank Intervention",
		}},
		{ID: 3, Trigger: "UST 10Y Rate Spike > 5.5%", Chain: []string{
			"Corporate Credit Stress", "Carry Trade Unwind", "Emerging Market Outflow", "Equity Tail Hedge Repricing",
		}},
	}

	now, _ := Latest(series)
	return Dashboard{
		Score:      now.Score,
		State:      ClassifyFragility(now.Score),
		Fragility:  series,
		Breaks:     breaks,
		Liquidity:  liquidity,
		Scenarios:  scenarios,
		Critical:   CriticalCount(breaks, liquidity),
		MarketNote: DefaultMarketNote,
	}
}

// MarketContext renders the context string handed to the insight requester.
// A non-empty note replaces the dashboard's default commentary.
func MarketContext(d Dashboard, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		note = d.MarketNote
	}

	var b strings.Builder
	b.WriteString(note)
	fmt.Fprintf(&b, " Fragility score %.1f (%s).", d.Score, d.State)
	for _, br := range FilterBySeverity(d.Breaks, SeverityHigh, SeverityMedium) {
		fmt.Fprintf(&b, " %s/%s correlation drifted %.2f (%s).", br.Pair[0], br.Pair[1], br.Drift, br.Severity)
	}
	for _, l := range d.Liquidity {
		if l.Trend == TrendDecay {
			fmt.Fprintf(&b, " %s depth at %.0f%% and decaying.", l.Venue, l.Depth)
		}
	}
	return b.String()
}

// ─── HELPERS ──────────────────────────────────────────────────────────────────

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
