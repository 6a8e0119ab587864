package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/sift/internal/common"
	"github.com/bobmcallan/sift/internal/interfaces"
	"github.com/bobmcallan/sift/internal/models"
)

// warmScheduler runs the default decline screen on a cron schedule so the
// first user request after market hours hits a warm cache.
type warmScheduler struct {
	cron     *cron.Cron
	service  interfaces.ScreenService
	logger   *common.Logger
	index    string
	lookback int
}

func newWarmScheduler(config common.ScreenConfig, service interfaces.ScreenService, logger *common.Logger) (*warmScheduler, error) {
	s := &warmScheduler{
		cron:     cron.New(),
		service:  service,
		logger:   logger,
		index:    config.DefaultIndex,
		lookback: config.WarmLookbackDays,
	}

	if _, err := s.cron.AddFunc(config.WarmCron, s.warmScan); err != nil {
		return nil, err
	}

	s.cron.Start()
	logger.Info().
		Str("cron", config.WarmCron).
		Str("index", s.index).
		Msg("Warm scan scheduler started")
	return s, nil
}

func (s *warmScheduler) stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Warm scan scheduler stopped")
}

// warmScan primes the cache with the default screen. A rate-limit rejection
// here just means users have already run it recently.
func (s *warmScheduler) warmScan() {
	start := time.Now().AddDate(0, 0, -s.lookback).Format("2006-01-02")

	resp, err := s.service.ScreenDecline(context.Background(), models.DeclineScreenParams{
		Start: start,
		Index: s.index,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Warm scan failed")
		return
	}

	s.logger.Info().
		Str("start", start).
		Int("candidates", len(resp.Candidates)).
		Bool("cached", resp.Cached).
		Msg("Warm scan complete")
}
