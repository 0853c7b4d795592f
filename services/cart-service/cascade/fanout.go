package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fanOut runs fn for every key on at most concurrency goroutines. Every key is attempted;
// failures are collected and joined so one bad cart never hides another.
func fanOut(ctx context.Context, concurrency int, keys []string, fn func(ctx context.Context, key string) error) error {
	if len(keys) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(keys) {
		concurrency = len(keys)
	}

	work := make(chan string)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				if err := fn(ctx, key); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", key, err))
					mu.Unlock()
				}
			}
		}()
	}

	for _, k := range keys {
		work <- k
	}
	close(work)
	wg.Wait()

	return errors.Join(errs...)
}
