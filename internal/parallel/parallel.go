// Package parallel provides the goroutine fan-out used by the CPU kernels.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers  int // Number of worker goroutines; <= 1 runs sequentially.
	MinItems int // Below this many items the loop stays on the calling goroutine.
}

// DefaultConfig returns defaults based on CPU count.
//
// Kernel work items are whole feature planes, so even a handful of items is
// worth spreading across cores.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.GOMAXPROCS(0),
		MinItems: 2,
	}
}

// Sequential returns a configuration that never spawns goroutines.
func Sequential() Config {
	return Config{Workers: 1}
}

// For executes f(i) for every i in [0, n).
//
// Items are handed out one at a time from a shared counter, so uneven item
// costs balance across workers. f must be safe to call concurrently for
// distinct i. For returns once every call has completed.
func For(n int, f func(i int), cfg Config) {
	workers := min(cfg.Workers, n)
	if workers <= 1 || n < cfg.MinItems {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= n {
					return
				}
				f(i)
			}
		}()
	}
	wg.Wait()
}

// ForBatch iterates the batch*channels grid common to NCHW kernels.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	For(batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
