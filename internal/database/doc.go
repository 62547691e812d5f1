// Package database provides the SQLite storage behind bebop's trust store.
//
// TrustDB keeps two tables, one row per certificate pin and one row per
// client identity, in a single file under the XDG data directory:
//
//	pins(host, port, fingerprint, first_seen, last_seen, not_after)
//	identities(id, name, host, port, path_scope, cert_pem, key_pem, expires)
//
// Tables are created with CREATE TABLE IF NOT EXISTS, so opening an
// existing file is idempotent. Queries name their columns explicitly and
// ignore any column added by a newer release.
//
// The driver is modernc.org/sqlite, a CGO-free SQLite port.
package database
