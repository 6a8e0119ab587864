package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/sift/internal/models"
)

func TestCoordinatorCoalescesIdenticalScans(t *testing.T) {
	coord := NewScanCoordinator(5, 10*time.Minute)

	var executions atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fn := func() (*models.ScanResult, error) {
		executions.Add(1)
		close(started)
		<-release
		return &models.ScanResult{SchemaVersion: models.ScanSchemaVersion}, nil
	}

	var wg sync.WaitGroup
	results := make([]*models.ScanResult, 4)
	joined := make([]bool, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], joined[0], _ = coord.Do(context.Background(), "decline", "k", fn)
	}()
	<-started

	for i := 1; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], joined[i], _ = coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
				t.Error("joiner must not execute the scan")
				return nil, nil
			})
		}(i)
	}

	// Give joiners time to attach before releasing the flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), executions.Load(), "exactly one execution for identical concurrent scans")
	for i := 0; i < 4; i++ {
		require.NotNil(t, results[i])
		assert.Same(t, results[0], results[i], "all callers share the one result")
	}
	assert.False(t, joined[0])
}

func TestCoordinatorRateLimitsDistinctScans(t *testing.T) {
	clock := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	coord := NewScanCoordinator(5, 10*time.Minute)
	coord.now = func() time.Time { return clock }

	fn := func() (*models.ScanResult, error) {
		return &models.ScanResult{}, nil
	}

	for i := 0; i < 5; i++ {
		_, _, err := coord.Do(context.Background(), "decline", fmt.Sprintf("k-%d", i), fn)
		require.NoError(t, err, "scan %d within budget", i)
	}

	_, _, err := coord.Do(context.Background(), "decline", "k-5", fn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited), "sixth distinct scan in window must be rejected")
}

func TestCoordinatorWindowResets(t *testing.T) {
	clock := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	coord := NewScanCoordinator(5, 10*time.Minute)
	coord.now = func() time.Time { return clock }

	fn := func() (*models.ScanResult, error) { return &models.ScanResult{}, nil }

	for i := 0; i < 5; i++ {
		_, _, err := coord.Do(context.Background(), "decline", fmt.Sprintf("k-%d", i), fn)
		require.NoError(t, err)
	}
	_, _, err := coord.Do(context.Background(), "decline", "blocked", fn)
	require.ErrorIs(t, err, ErrRateLimited)

	clock = clock.Add(10*time.Minute + time.Second)
	_, _, err = coord.Do(context.Background(), "decline", "fresh", fn)
	assert.NoError(t, err, "budget resets after the window elapses")
}

func TestCoordinatorBucketsPerScreen(t *testing.T) {
	coord := NewScanCoordinator(1, 10*time.Minute)
	fn := func() (*models.ScanResult, error) { return &models.ScanResult{}, nil }

	_, _, err := coord.Do(context.Background(), "decline", "a", fn)
	require.NoError(t, err)
	_, _, err = coord.Do(context.Background(), "decline", "b", fn)
	require.ErrorIs(t, err, ErrRateLimited)

	_, _, err = coord.Do(context.Background(), "pattern", "a", fn)
	assert.NoError(t, err, "screens have independent budgets")
}

func TestCoordinatorPropagatesScanError(t *testing.T) {
	coord := NewScanCoordinator(5, 10*time.Minute)
	scanErr := errors.New("boom")

	result, _, err := coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
		return nil, scanErr
	})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, scanErr)

	// A failed scan releases its flight; the key runs again.
	result, _, err = coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
		return &models.ScanResult{}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCoordinatorReleasesKeyAfterPanic(t *testing.T) {
	coord := NewScanCoordinator(5, 10*time.Minute)

	_, _, err := coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
		panic("scan blew up")
	})
	require.Error(t, err, "a panicking scan surfaces as an error, not a crash")
	assert.Contains(t, err.Error(), "scan blew up")

	// The flight marker must not survive the panic; the key runs again.
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, _, err := coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
			return &models.ScanResult{}, nil
		})
		assert.NoError(t, err)
		assert.NotNil(t, result)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key still registered after a panicking scan")
	}
}

func TestCoordinatorJoinerSeesPanicError(t *testing.T) {
	coord := NewScanCoordinator(5, 10*time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		defer func() { recover() }()
		coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
			close(started)
			<-release
			panic("scan blew up")
		})
	}()
	<-started

	errCh := make(chan error, 1)
	go func() {
		_, _, err := coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
			t.Error("joiner must not execute the scan")
			return nil, nil
		})
		errCh <- err
	}()

	// Give the joiner time to attach, then let the flight panic.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")
	case <-time.After(time.Second):
		t.Fatal("joiner never woke after the flight panicked")
	}
}

func TestCoordinatorJoinerHonorsContext(t *testing.T) {
	coord := NewScanCoordinator(5, 10*time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	go coord.Do(context.Background(), "decline", "k", func() (*models.ScanResult, error) {
		close(started)
		<-release
		return &models.ScanResult{}, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, joined, err := coord.Do(ctx, "decline", "k", func() (*models.ScanResult, error) {
		t.Error("must not execute")
		return nil, nil
	})
	assert.True(t, joined)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
