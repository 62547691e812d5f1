// Package cache keeps recent success responses in memory so that going
// back, forward or re-opening a page does not hit the network.
//
// The cache is an LRU (github.com/hashicorp/golang-lru/v2) bounded both by
// the number of entries and by the total size of the bodies it holds.
// Entries older than the TTL are misses and are dropped when seen. Only
// success responses are stored; redirects, input prompts and failures
// always go to the server.
//
// One Cache is shared by every navigation engine of the process. All
// methods are safe for concurrent use.
package cache
