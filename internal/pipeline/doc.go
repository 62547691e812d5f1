// Package pipeline fetches several pages concurrently.
//
// A BatchFetcher runs independent fetches through a navigation engine's
// fetch path, so responses are shared with the cache and concurrent
// requests for the same URL are collapsed, while the engine's history is
// left untouched. Concurrency is bounded with errgroup.
package pipeline
