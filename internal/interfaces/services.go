package interfaces

import (
	"context"

	"github.com/bobmcallan/sift/internal/models"
)

// ScreenService runs parameterized market screens behind caching,
// single-flight deduplication, and per-screen rate limiting.
type ScreenService interface {
	// ScreenDecline runs the continuous-decline funnel: universe, quote
	// prefilter, decline + benchmark slope checks, Rule of 40 filter.
	ScreenDecline(ctx context.Context, params models.DeclineScreenParams) (*models.ScreenResponse, error)

	// ScreenPattern ranks the universe by composite pattern score.
	ScreenPattern(ctx context.Context, params models.PatternScreenParams) (*models.ScreenResponse, error)
}
