// Package dialer opens the TCP connections used by every protocol handler.
//
// A Dialer connects directly, or through a SOCKS5 proxy when one is
// configured (for example a local Tor daemon to reach .onion capsules).
// Every dial is bounded by the connect timeout and honours context
// cancellation. Connections are never pooled or reused: each fetch owns
// its connection.
package dialer
