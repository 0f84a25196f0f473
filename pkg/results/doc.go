// Package results provides the bounded, concurrency-safe store that workers
// write task outcomes into.
//
// The store keeps at most Cap() results. When a store operation finds the
// store full it silently evicts the results with the oldest CompletedAt
// before inserting, so callers must not assume a result stays available.
//
//	store, _ := results.New(1000, results.WithLogger(logger))
//	store.Store(res)
//	latest := store.Recent(10)
//
// Observers registered with WithObserver see every stored result after the
// store lock is released. RedisMirror is an Observer that publishes results
// to Redis for readers outside the process.
package results
