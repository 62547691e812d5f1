// Package keylock provides a mutex keyed by string.
//
// Goroutines that lock the same key are serialized, while goroutines that
// lock different keys never wait on each other. The trust store locks on
// "host:port" and the response cache locks on the normalized URL.
package keylock
