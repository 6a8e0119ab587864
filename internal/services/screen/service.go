package screen

import (
	"context"
	"sort"
	"time"

	"github.com/bobmcallan/sift/internal/common"
	"github.com/bobmcallan/sift/internal/interfaces"
	"github.com/bobmcallan/sift/internal/models"
	"github.com/bobmcallan/sift/internal/signals"
)

// Service orchestrates the screening funnel: resolve universe, prefilter on
// quotes, run decline and slope analysis against price history, gate on
// fundamentals, assemble and cache. Per-symbol failures at any stage drop
// the symbol and nothing else; only parameter validation and rate limiting
// surface errors to the caller.
type Service struct {
	gateway     interfaces.MarketDataClient
	coordinator *ScanCoordinator
	cache       *ResultCache
	logger      *common.Logger
	config      common.ScreenConfig
	now         func() time.Time // injectable clock for testing
}

// NewService creates a screen service with cache and coordinator sized from
// config.
func NewService(gateway interfaces.MarketDataClient, config common.ScreenConfig, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		gateway:     gateway,
		coordinator: NewScanCoordinator(config.RateLimitMax, config.GetRateLimitWindow()),
		cache:       NewResultCache(config.GetCacheTTL(), config.CacheCapacity),
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

var _ interfaces.ScreenService = (*Service)(nil)

// ScreenDecline runs the decline screen for the given parameters, serving
// from cache when possible and coalescing identical concurrent scans.
func (s *Service) ScreenDecline(ctx context.Context, params models.DeclineScreenParams) (*models.ScreenResponse, error) {
	start, err := params.Validate()
	if err != nil {
		return nil, err
	}
	key := params.Key()

	if result, ok := s.cache.Get(key); ok {
		s.logger.Debug().Str("key", key).Msg("serving cached scan result")
		return responseFrom(result, true), nil
	}

	// The funnel keeps running even if this caller goes away; joiners of the
	// same flight still want the result, and it feeds the cache either way.
	detached := context.WithoutCancel(ctx)
	result, _, err := s.coordinator.Do(ctx, "decline", key, func() (*models.ScanResult, error) {
		return s.runDeclineFunnel(detached, params, start)
	})
	if err != nil {
		return nil, err
	}
	return responseFrom(result, false), nil
}

// ScreenPattern ranks an index universe by composite pattern score.
func (s *Service) ScreenPattern(ctx context.Context, params models.PatternScreenParams) (*models.ScreenResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	key := params.Key()

	if result, ok := s.cache.Get(key); ok {
		return responseFrom(result, true), nil
	}

	detached := context.WithoutCancel(ctx)
	result, _, err := s.coordinator.Do(ctx, "pattern", key, func() (*models.ScanResult, error) {
		return s.runPatternScan(detached, params)
	})
	if err != nil {
		return nil, err
	}
	return responseFrom(result, false), nil
}

func responseFrom(result *models.ScanResult, cached bool) *models.ScreenResponse {
	return &models.ScreenResponse{
		Candidates:    result.Candidates,
		GeneratedAt:   result.GeneratedAt,
		SchemaVersion: result.SchemaVersion,
		Cached:        cached,
		Stages:        result.Stages,
	}
}

// runDeclineFunnel executes the full decline pipeline. It never returns an
// error: an unresolvable universe degrades to an empty result and per-symbol
// failures silently narrow the funnel.
func (s *Service) runDeclineFunnel(ctx context.Context, params models.DeclineScreenParams, start time.Time) (*models.ScanResult, error) {
	var stages []models.FunnelStage
	record := func(name string, in, out int, began time.Time) {
		stages = append(stages, models.FunnelStage{
			Name:        name,
			InputCount:  in,
			OutputCount: out,
			Duration:    time.Since(began),
		})
	}

	began := time.Now()
	universe := s.resolveUniverse(ctx, params.Index)
	record("universe_resolved", 0, len(universe), began)

	began = time.Now()
	quotes := s.fetchQuotes(ctx, symbolsOf(universe))
	survivors := make([]*models.Constituent, 0, len(universe))
	for _, c := range universe {
		quote, ok := quotes[c.Symbol]
		if !ok {
			continue
		}
		// Above its own 50-day average means no meaningful pullback to screen.
		if quote.PriceAvg50 > 0 && quote.Price > quote.PriceAvg50 {
			continue
		}
		survivors = append(survivors, c)
	}
	record("prefiltered", len(universe), len(survivors), began)

	began = time.Now()
	benchmark := s.fetchHistory(ctx, s.config.Benchmark, start)
	histories := fetchConcurrent(ctx, symbolsOf(survivors), s.config.HistoryConcurrency, func(ctx context.Context, symbol string) ([]models.PricePoint, error) {
		return s.fetchHistoryErr(ctx, symbol, start)
	})

	declined := make([]*models.ScreeningCandidate, 0, len(survivors))
	for _, c := range survivors {
		history, ok := histories[c.Symbol]
		if !ok || len(history) == 0 {
			continue
		}
		models.SortPricePoints(history)

		decline := signals.DetectDecline(history)
		if decline == nil {
			continue
		}

		// With no benchmark series the similarity gate cannot run; keep the
		// candidate rather than reject the whole stage.
		var slopeScore float64
		if len(benchmark) > 0 {
			score, ok := signals.SlopeSimilarity(history, benchmark)
			if !ok {
				continue
			}
			slopeScore = score
		}

		candidate := &models.ScreeningCandidate{
			Symbol:     c.Symbol,
			Name:       c.Name,
			Sector:     c.Sector,
			Decline:    decline,
			SlopeScore: slopeScore,
			Pattern:    signals.ScorePattern(history),
		}
		if quote := quotes[c.Symbol]; quote != nil {
			candidate.Price = quote.Price
			candidate.MarketCap = quote.MarketCap
			if candidate.Name == "" {
				candidate.Name = quote.Name
			}
		}
		declined = append(declined, candidate)
	}
	record("decline_checked", len(survivors), len(declined), began)

	began = time.Now()
	currentYear := s.now().Year()
	estimates := fetchConcurrent(ctx, candidateSymbols(declined), s.config.EstimateConcurrency, func(ctx context.Context, symbol string) ([]models.ForwardEstimate, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.config.GetFetchTimeout())
		defer cancel()
		return s.gateway.GetForwardEstimates(fetchCtx, symbol, s.config.EstimatePeriods)
	})

	passed := make([]*models.ScreeningCandidate, 0, len(declined))
	for _, candidate := range declined {
		rows, ok := estimates[candidate.Symbol]
		if !ok {
			continue
		}
		rule := EvaluateRuleOf40(rows, currentYear)
		if rule == nil || !rule.Passes() {
			continue
		}
		candidate.Fundamentals = rule
		passed = append(passed, candidate)
	}
	record("fundamentals_checked", len(declined), len(passed), began)

	began = time.Now()
	sort.Slice(passed, func(i, j int) bool {
		if passed[i].Decline.DropPercent != passed[j].Decline.DropPercent {
			return passed[i].Decline.DropPercent > passed[j].Decline.DropPercent
		}
		return passed[i].Symbol < passed[j].Symbol
	})
	if len(passed) > params.Limit {
		passed = passed[:params.Limit]
	}
	record("assembled", len(passed), len(passed), began)

	result := &models.ScanResult{
		Candidates:    passed,
		GeneratedAt:   s.now(),
		SchemaVersion: models.ScanSchemaVersion,
		Stages:        stages,
	}
	s.cache.Put(params.Key(), result)

	s.logger.Info().
		Str("index", params.Index).
		Str("start", params.Start).
		Int("candidates", len(passed)).
		Msg("decline scan complete")

	return result, nil
}

// runPatternScan ranks the universe by pattern score; no decline or
// fundamental gates apply, only a minimum grade of C.
func (s *Service) runPatternScan(ctx context.Context, params models.PatternScreenParams) (*models.ScanResult, error) {
	var stages []models.FunnelStage
	record := func(name string, in, out int, began time.Time) {
		stages = append(stages, models.FunnelStage{
			Name:        name,
			InputCount:  in,
			OutputCount: out,
			Duration:    time.Since(began),
		})
	}

	began := time.Now()
	universe := s.resolveUniverse(ctx, params.Index)
	record("universe_resolved", 0, len(universe), began)

	began = time.Now()
	quotes := s.fetchQuotes(ctx, symbolsOf(universe))
	survivors := make([]*models.Constituent, 0, len(universe))
	for _, c := range universe {
		if _, ok := quotes[c.Symbol]; ok {
			survivors = append(survivors, c)
		}
	}
	record("quoted", len(universe), len(survivors), began)

	// Pattern scoring needs a full trading year of bars; fetch with margin.
	from := s.now().AddDate(0, 0, -patternLookbackDays)

	began = time.Now()
	histories := fetchConcurrent(ctx, symbolsOf(survivors), s.config.HistoryConcurrency, func(ctx context.Context, symbol string) ([]models.PricePoint, error) {
		return s.fetchHistoryErr(ctx, symbol, from)
	})

	scored := make([]*models.ScreeningCandidate, 0, len(survivors))
	for _, c := range survivors {
		history, ok := histories[c.Symbol]
		if !ok {
			continue
		}
		models.SortPricePoints(history)

		pattern := signals.ScorePattern(history)
		if pattern.Total < minPatternTotal {
			continue
		}
		candidate := &models.ScreeningCandidate{
			Symbol:  c.Symbol,
			Name:    c.Name,
			Sector:  c.Sector,
			Pattern: pattern,
		}
		if quote := quotes[c.Symbol]; quote != nil {
			candidate.Price = quote.Price
			candidate.MarketCap = quote.MarketCap
		}
		scored = append(scored, candidate)
	}
	record("pattern_scored", len(universe), len(scored), began)

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Pattern.Total != scored[j].Pattern.Total {
			return scored[i].Pattern.Total > scored[j].Pattern.Total
		}
		return scored[i].Symbol < scored[j].Symbol
	})
	if len(scored) > params.Limit {
		scored = scored[:params.Limit]
	}

	result := &models.ScanResult{
		Candidates:    scored,
		GeneratedAt:   s.now(),
		SchemaVersion: models.ScanSchemaVersion,
		Stages:        stages,
	}
	s.cache.Put(params.Key(), result)

	s.logger.Info().
		Str("index", params.Index).
		Int("candidates", len(scored)).
		Msg("pattern scan complete")

	return result, nil
}

const (
	// minPatternTotal is the lowest composite score the pattern screen keeps,
	// the floor of grade C.
	minPatternTotal = 45.0

	// patternLookbackDays gives roughly 252 trading days with margin for
	// holidays and listing gaps.
	patternLookbackDays = 400
)

// resolveUniverse returns the index membership deduplicated by symbol, or an
// empty slice when the gateway fails. A dead universe degrades the scan to an
// empty result rather than an error.
func (s *Service) resolveUniverse(ctx context.Context, indexID string) []*models.Constituent {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.GetFetchTimeout())
	defer cancel()

	universe, err := s.gateway.GetConstituents(fetchCtx, indexID)
	if err != nil {
		s.logger.Warn().Err(err).Str("index", indexID).Msg("universe resolution failed")
		return nil
	}

	// Constituent lists can carry duplicate symbol rows (dual share classes,
	// stale memberships). First occurrence wins for name and sector.
	seen := make(map[string]bool, len(universe))
	deduped := make([]*models.Constituent, 0, len(universe))
	for _, c := range universe {
		if seen[c.Symbol] {
			continue
		}
		seen[c.Symbol] = true
		deduped = append(deduped, c)
	}
	return deduped
}

// fetchQuotes retrieves quotes in provider-sized batches with bounded
// concurrency. Failed batches drop their symbols from the map.
func (s *Service) fetchQuotes(ctx context.Context, symbols []string) map[string]*models.Quote {
	batches := chunkSymbols(symbols, s.config.QuoteBatchSize)

	concurrency := s.config.QuoteBatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make(chan map[string]*models.Quote, len(batches))

	for _, batch := range batches {
		go func(batch []string) {
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, s.config.GetFetchTimeout())
			defer cancel()

			quotes, err := s.gateway.GetBatchQuotes(fetchCtx, batch)
			if err != nil {
				s.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("quote batch failed")
				results <- nil
				return
			}
			results <- quotes
		}(batch)
	}

	merged := make(map[string]*models.Quote, len(symbols))
	for range batches {
		for symbol, quote := range <-results {
			merged[symbol] = quote
		}
	}
	return merged
}

func (s *Service) fetchHistory(ctx context.Context, symbol string, from time.Time) []models.PricePoint {
	history, err := s.fetchHistoryErr(ctx, symbol, from)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("history fetch failed")
		return nil
	}
	models.SortPricePoints(history)
	return history
}

func (s *Service) fetchHistoryErr(ctx context.Context, symbol string, from time.Time) ([]models.PricePoint, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.GetFetchTimeout())
	defer cancel()
	return s.gateway.GetHistoricalPrices(fetchCtx, symbol, from)
}

func symbolsOf(constituents []*models.Constituent) []string {
	symbols := make([]string, 0, len(constituents))
	for _, c := range constituents {
		symbols = append(symbols, c.Symbol)
	}
	return symbols
}

func candidateSymbols(candidates []*models.ScreeningCandidate) []string {
	symbols := make([]string, 0, len(candidates))
	for _, c := range candidates {
		symbols = append(symbols, c.Symbol)
	}
	return symbols
}
