// Package uri parses, resolves and normalizes the URLs handled by bebop.
//
// Every URL that leaves this package is absolute and normalized: the scheme
// and host are lower-cased (non-ASCII hosts are folded to their IDNA ASCII
// form), the default port of the scheme is omitted, dot segments are removed
// from the path and empty queries and fragments are dropped. The String form
// of a normalized URL is used as the cache key and for equality.
//
// Relative references are resolved following RFC 3986 section 5.2:
//
//	base, _ := uri.Parse("gemini://example.org/dir/index.gmi")
//	u, _ := uri.Resolve(base, "../about.gmi") // gemini://example.org/about.gmi
//
// The functions in this package do not know which schemes have a registered
// handler. Rejecting an unsupported scheme is the job of the protocol
// registry.
package uri
