// Package interfaces defines service contracts for Sift
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/sift/internal/models"
)

// MarketDataClient provides access to the upstream market data gateway.
// Every method may fail or time out; callers treat a failure as "no data
// for this symbol", never as a fatal pipeline error.
type MarketDataClient interface {
	// GetConstituents retrieves the membership list of an index universe
	GetConstituents(ctx context.Context, indexID string) ([]*models.Constituent, error)

	// GetBatchQuotes retrieves current quotes for up to a provider-defined
	// number of symbols in one call, keyed by symbol. Symbols the provider
	// does not know are simply absent from the map.
	GetBatchQuotes(ctx context.Context, symbols []string) (map[string]*models.Quote, error)

	// GetHistoricalPrices retrieves daily OHLCV bars from the given date.
	// Order is not guaranteed; callers sort ascending before analysis.
	GetHistoricalPrices(ctx context.Context, symbol string, from time.Time) ([]models.PricePoint, error)

	// GetForwardEstimates retrieves forward annual analyst estimate rows
	GetForwardEstimates(ctx context.Context, symbol string, periods int) ([]models.ForwardEstimate, error)
}
