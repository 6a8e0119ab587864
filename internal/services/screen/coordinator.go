package screen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/sift/internal/models"
)

// ErrRateLimited is returned when a screen has exhausted its scan budget for
// the current rate window. Callers should map this to a retry-later response.
var ErrRateLimited = errors.New("scan rate limit exceeded")

// ScanCoordinator serializes concurrent scans. Identical in-flight scans are
// coalesced into one execution whose result is shared with every waiter, and
// each screen gets a fixed-window budget of new scan admissions. Joining an
// in-flight scan or hitting the cache never consumes budget; only the call
// that actually starts work is charged.
type ScanCoordinator struct {
	mu           chan struct{} // buffered size 1, acts as mutex usable with select
	flights      map[string]*flight
	windows      map[string]*rateWindow
	maxPerWindow int
	window       time.Duration
	now          func() time.Time
}

type flight struct {
	done   chan struct{}
	result *models.ScanResult
	err    error
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewScanCoordinator creates a coordinator allowing maxPerWindow new scans
// per screen per window.
func NewScanCoordinator(maxPerWindow int, window time.Duration) *ScanCoordinator {
	c := &ScanCoordinator{
		mu:           make(chan struct{}, 1),
		flights:      make(map[string]*flight),
		windows:      make(map[string]*rateWindow),
		maxPerWindow: maxPerWindow,
		window:       window,
		now:          time.Now,
	}
	return c
}

func (c *ScanCoordinator) lock()   { c.mu <- struct{}{} }
func (c *ScanCoordinator) unlock() { <-c.mu }

// Do runs fn for key, coalescing with any identical scan already in flight.
// screen names the rate-limit bucket (e.g. "decline"); key identifies the
// exact scan parameters. A caller that joins an in-flight scan receives the
// same result and error as the originator. A caller that would start a new
// scan past the screen's window budget gets ErrRateLimited without running fn.
func (c *ScanCoordinator) Do(ctx context.Context, screen, key string, fn func() (*models.ScanResult, error)) (result *models.ScanResult, joined bool, err error) {
	c.lock()

	if f, ok := c.flights[key]; ok {
		c.unlock()
		select {
		case <-f.done:
			return f.result, true, f.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	if !c.admit(screen) {
		c.unlock()
		return nil, false, fmt.Errorf("screen %s: %w", screen, ErrRateLimited)
	}

	f := &flight{done: make(chan struct{})}
	c.flights[key] = f
	c.unlock()

	// The marker must come off and waiters must wake no matter how fn ends.
	// A panicking scan surfaces as an error to the originator and every
	// joiner rather than wedging the key.
	defer func() {
		if rec := recover(); rec != nil {
			f.result, f.err = nil, fmt.Errorf("scan %s panicked: %v", key, rec)
			result, err = f.result, f.err
		}
		c.lock()
		delete(c.flights, key)
		c.unlock()
		close(f.done)
	}()

	f.result, f.err = fn()

	return f.result, false, f.err
}

// admit charges one scan against the screen's current window. Caller holds
// the lock.
func (c *ScanCoordinator) admit(screen string) bool {
	now := c.now()
	w, ok := c.windows[screen]
	if !ok || now.After(w.resetAt) {
		c.windows[screen] = &rateWindow{count: 1, resetAt: now.Add(c.window)}
		return true
	}
	if w.count >= c.maxPerWindow {
		return false
	}
	w.count++
	return true
}
