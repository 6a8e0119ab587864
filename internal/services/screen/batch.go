package screen

import (
	"context"
	"sync"
)

// fetchConcurrent runs fetch for each symbol with at most concurrency calls
// in flight and collects the successful results by symbol. Individual
// failures are dropped; a symbol that errors simply has no entry in the
// returned map.
func fetchConcurrent[T any](ctx context.Context, symbols []string, concurrency int, fetch func(ctx context.Context, symbol string) (T, error)) map[string]T {
	if concurrency <= 0 {
		concurrency = 1
	}

	type item struct {
		symbol string
		value  T
	}

	sem := make(chan struct{}, concurrency)
	results := make(chan item, len(symbols))

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			value, err := fetch(ctx, symbol)
			if err != nil {
				return
			}
			results <- item{symbol: symbol, value: value}
		}(symbol)
	}

	wg.Wait()
	close(results)

	out := make(map[string]T, len(symbols))
	for it := range results {
		out[it.symbol] = it.value
	}
	return out
}

// chunkSymbols splits symbols into batches of at most size.
func chunkSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var batches [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}
