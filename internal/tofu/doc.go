// Package tofu implements trust-on-first-use certificate pinning and the
// client identities presented to Gemini servers.
//
// Gemini servers commonly use self-signed certificates, so the client does
// not validate chains against a CA pool. Instead the Store remembers the
// SHA-256 fingerprint of the first leaf certificate seen for each host and
// port, and rejects a later handshake that presents a different one:
//
//	Unknown --first handshake--> Pinned --different fingerprint--> Mismatched
//	Mismatched --Repin--> Pinned
//
// A pin older than the configured maximum age, or whose certificate has
// passed its NotAfter date, is treated as unknown and replaced silently.
// Certificates can also be trusted for the current session only; such trust
// lives in memory and is never written to the Backend.
//
// Identities are client certificates scoped to a host, port and path
// prefix. IdentityFor picks the identity with the longest scope that
// contains the requested path, matching whole path segments only.
//
// All mutations are serialized per "host:port" key, so verifying one host
// never waits on another.
package tofu
