// Package models defines data structures for Sift
package models

import (
	"sort"
	"time"
)

// PricePoint represents a single day's price data for one instrument.
// Unique per (symbol, date); series must be sorted ascending by date
// before any indicator computation. Callers own the sort.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// SortPricePoints sorts a price series ascending by date in place.
// Gateway responses carry no ordering guarantee.
func SortPricePoints(points []PricePoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
}

// Constituent is one index membership row from the gateway.
type Constituent struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
}

// Quote holds the current snapshot the gateway reports for a symbol.
// PriceAvg50/PriceAvg200 are source-computed trailing averages; zero when
// the source omits them.
type Quote struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	MarketCap   float64 `json:"market_cap"`
	PriceAvg50  float64 `json:"price_avg_50"`
	PriceAvg200 float64 `json:"price_avg_200"`
	Volume      int64   `json:"volume"`
}

// ForwardEstimate is one forward annual analyst estimate row.
type ForwardEstimate struct {
	PeriodEnd    time.Time `json:"period_end"`
	RevenueAvg   float64   `json:"revenue_avg"`
	NetIncomeAvg float64   `json:"net_income_avg"`
	AnalystCount int       `json:"analyst_count"`
}
