package screen

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchConcurrentCollectsSuccesses(t *testing.T) {
	symbols := []string{"AAPL", "MSFT", "FAIL", "GOOG"}

	out := fetchConcurrent(context.Background(), symbols, 2, func(_ context.Context, symbol string) (string, error) {
		if symbol == "FAIL" {
			return "", errors.New("gateway error")
		}
		return symbol + "-data", nil
	})

	assert.Len(t, out, 3)
	assert.Equal(t, "AAPL-data", out["AAPL"])
	_, ok := out["FAIL"]
	assert.False(t, ok, "failed symbol must be absent, not present with a zero value")
}

func TestFetchConcurrentBoundsParallelism(t *testing.T) {
	symbols := make([]string, 20)
	for i := range symbols {
		symbols[i] = string(rune('A' + i))
	}

	var mu sync.Mutex
	inFlight, peak := 0, 0

	fetchConcurrent(context.Background(), symbols, 3, func(_ context.Context, symbol string) (int, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		mu.Lock()
		inFlight--
		mu.Unlock()
		return 0, nil
	})

	assert.LessOrEqual(t, peak, 3, "no more than the concurrency limit in flight")
}

func TestFetchConcurrentEmptyInput(t *testing.T) {
	out := fetchConcurrent(context.Background(), nil, 4, func(_ context.Context, symbol string) (int, error) {
		t.Error("fetch must not be called")
		return 0, nil
	})
	assert.Empty(t, out)
}

func TestChunkSymbols(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		size    int
		want    [][]string
	}{
		{"even split", []string{"a", "b", "c", "d"}, 2, [][]string{{"a", "b"}, {"c", "d"}}},
		{"remainder batch", []string{"a", "b", "c"}, 2, [][]string{{"a", "b"}, {"c"}}},
		{"oversized batch", []string{"a", "b"}, 10, [][]string{{"a", "b"}}},
		{"empty input", nil, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkSymbols(tt.symbols, tt.size))
		})
	}
}
