package models

import (
	"fmt"
	"time"
)

// ScanSchemaVersion stamps cached scan results. Bump whenever the candidate
// shape changes so stale cache entries from an old binary are never served.
const ScanSchemaVersion = 2

// RuleOf40Threshold is the minimum growth+margin score to pass the
// fundamental filter.
const RuleOf40Threshold = 40.0

// DeclineRecord quantifies a continuous decline from a series peak.
type DeclineRecord struct {
	DropPercent float64   `json:"drop_percent"`
	PeakPrice   float64   `json:"peak_price"`
	PeakDate    time.Time `json:"peak_date"`
}

// PatternScore is the composite 0-100 pattern heuristic with its sub-scores.
type PatternScore struct {
	Total      float64 `json:"total"`
	Grade      string  `json:"grade"` // A | B | C | D
	Trend      float64 `json:"trend"`
	Recovery   float64 `json:"recovery"`
	Volatility float64 `json:"volatility"`
	Reversion  float64 `json:"reversion"`
	Uptrend    float64 `json:"uptrend"`
}

// RuleOf40 holds the growth+margin computation from forward estimates.
type RuleOf40 struct {
	RevenueGrowthPct float64 `json:"revenue_growth_pct"`
	ProfitMarginPct  float64 `json:"profit_margin_pct"`
	Score            float64 `json:"score"`
}

// Passes reports whether the score clears the efficient-growth threshold.
func (r *RuleOf40) Passes() bool {
	return r.Score >= RuleOf40Threshold
}

// ScreeningCandidate is one surviving instrument in a scan result.
// Created fresh per scan and never mutated after assembly.
type ScreeningCandidate struct {
	Symbol       string         `json:"symbol"`
	Name         string         `json:"name"`
	Sector       string         `json:"sector,omitempty"`
	Price        float64        `json:"price"`
	MarketCap    float64        `json:"market_cap"`
	Decline      *DeclineRecord `json:"decline,omitempty"`
	SlopeScore   float64        `json:"slope_score,omitempty"`
	Pattern      *PatternScore  `json:"pattern,omitempty"`
	Fundamentals *RuleOf40      `json:"fundamentals,omitempty"`
}

// FunnelStage records input/output counts and timing for one pipeline stage.
type FunnelStage struct {
	Name        string        `json:"name"`
	InputCount  int           `json:"input_count"`
	OutputCount int           `json:"output_count"`
	Duration    time.Duration `json:"duration"`
}

// ScanResult is the cacheable unit produced by one funnel execution.
type ScanResult struct {
	Candidates    []*ScreeningCandidate `json:"candidates"`
	GeneratedAt   time.Time             `json:"generated_at"`
	SchemaVersion int                   `json:"schema_version"`
	Stages        []FunnelStage         `json:"stages,omitempty"`
}

// ScreenResponse is the presentation envelope for a screen operation.
// Cached distinguishes a served cache entry from a freshly computed result.
type ScreenResponse struct {
	Candidates    []*ScreeningCandidate `json:"candidates"`
	GeneratedAt   time.Time             `json:"generated_at"`
	SchemaVersion int                   `json:"schema_version"`
	Cached        bool                  `json:"cached"`
	Stages        []FunnelStage         `json:"stages,omitempty"`
}

// DeclineScreenParams parameterizes the decline screen.
type DeclineScreenParams struct {
	Start string `json:"start"` // strict YYYY-MM-DD; decline window start
	Index string `json:"index"`
	Limit int    `json:"limit"`
}

// Validate normalizes defaults and parses the start date. A malformed date
// is a client error; no funnel work may begin after a failure here.
func (p *DeclineScreenParams) Validate() (time.Time, error) {
	if p.Index == "" {
		p.Index = "sp500"
	}
	if p.Limit <= 0 {
		p.Limit = 25
	}
	if p.Limit > 50 {
		p.Limit = 50
	}
	start, err := time.Parse("2006-01-02", p.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q: want YYYY-MM-DD", p.Start)
	}
	return start, nil
}

// Key returns the cache/single-flight key for this parameterization.
func (p *DeclineScreenParams) Key() string {
	return fmt.Sprintf("decline|%s|%s|%d", p.Index, p.Start, p.Limit)
}

// PatternScreenParams parameterizes the pattern-score ranking screen.
type PatternScreenParams struct {
	Index string `json:"index"`
	Limit int    `json:"limit"`
}

// Validate normalizes defaults.
func (p *PatternScreenParams) Validate() error {
	if p.Index == "" {
		p.Index = "sp500"
	}
	if p.Limit <= 0 {
		p.Limit = 25
	}
	if p.Limit > 50 {
		p.Limit = 50
	}
	return nil
}

// Key returns the cache/single-flight key for this parameterization.
func (p *PatternScreenParams) Key() string {
	return fmt.Sprintf("pattern|%s|%d", p.Index, p.Limit)
}
