package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/bebop/internal/tofu"
)

// FileName is the name of the database file inside the data directory.
const FileName = "bebop.db"

// TrustDB is the SQLite implementation of tofu.Backend.
type TrustDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

var _ tofu.Backend = (*TrustDB)(nil)

// Options configures TrustDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a TrustDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*TrustDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create the file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	tdb := &TrustDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := tdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return tdb, nil
}

// Path returns the path of the database file.
func (tdb *TrustDB) Path() string {
	return tdb.dbPath
}

// Close closes the database connection.
func (tdb *TrustDB) Close() error {
	return tdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (tdb *TrustDB) createTables() error {
	schema := `
	-- One certificate pin per host and port
	CREATE TABLE IF NOT EXISTS pins (
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		not_after DATETIME,
		PRIMARY KEY (host, port)
	);

	-- Client certificates scoped to a host, port and path prefix
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		path_scope TEXT NOT NULL DEFAULT '/',
		cert_pem TEXT NOT NULL,
		key_pem TEXT NOT NULL,
		expires DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_identities_host ON identities(host, port);
	`

	_, err := tdb.db.ExecContext(context.Background(), schema)
	return err
}

// LoadPins returns every stored pin.
func (tdb *TrustDB) LoadPins(ctx context.Context) ([]tofu.Pin, error) {
	query := `
	SELECT host, port, fingerprint, first_seen, last_seen, not_after
	FROM pins
	ORDER BY host, port
	`

	rows, err := tdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	var pins []tofu.Pin
	for rows.Next() {
		var pin tofu.Pin
		var firstSeen, lastSeen string
		var notAfter sql.NullString

		if err := rows.Scan(&pin.Host, &pin.Port, &pin.Fingerprint, &firstSeen, &lastSeen, &notAfter); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}

		pin.FirstSeen = parseTimestamp(firstSeen)
		pin.LastSeen = parseTimestamp(lastSeen)
		if notAfter.Valid {
			pin.NotAfter = parseTimestamp(notAfter.String)
		}
		pins = append(pins, pin)
	}

	return pins, rows.Err()
}

// SavePin inserts or replaces the pin for its host and port.
func (tdb *TrustDB) SavePin(ctx context.Context, pin tofu.Pin) error {
	query := `
	INSERT INTO pins (host, port, fingerprint, first_seen, last_seen, not_after)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(host, port) DO UPDATE SET
		fingerprint = excluded.fingerprint,
		first_seen = excluded.first_seen,
		last_seen = excluded.last_seen,
		not_after = excluded.not_after
	`

	_, err := tdb.db.ExecContext(ctx, query,
		pin.Host,
		pin.Port,
		pin.Fingerprint,
		formatTimestamp(pin.FirstSeen),
		formatTimestamp(pin.LastSeen),
		nullTimestamp(pin.NotAfter),
	)
	if err != nil {
		return fmt.Errorf("failed to save pin: %w", err)
	}

	return nil
}

// DeletePin removes the pin for host and port. Deleting a missing pin is not an error.
func (tdb *TrustDB) DeletePin(ctx context.Context, host string, port int) error {
	if _, err := tdb.db.ExecContext(ctx, `DELETE FROM pins WHERE host = ? AND port = ?`, host, port); err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	return nil
}

// LoadIdentities returns every stored identity.
func (tdb *TrustDB) LoadIdentities(ctx context.Context) ([]tofu.Identity, error) {
	query := `
	SELECT id, name, host, port, path_scope, cert_pem, key_pem, expires
	FROM identities
	ORDER BY host, port, path_scope
	`

	rows, err := tdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var identities []tofu.Identity
	for rows.Next() {
		var id tofu.Identity
		var certPEM, keyPEM string
		var expires sql.NullString

		if err := rows.Scan(&id.ID, &id.Name, &id.Host, &id.Port, &id.PathScope, &certPEM, &keyPEM, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}

		id.CertificatePEM = []byte(certPEM)
		id.KeyPEM = []byte(keyPEM)
		if expires.Valid {
			id.Expires = parseTimestamp(expires.String)
		}
		identities = append(identities, id)
	}

	return identities, rows.Err()
}

// SaveIdentity inserts or replaces an identity by ID.
func (tdb *TrustDB) SaveIdentity(ctx context.Context, identity tofu.Identity) error {
	query := `
	INSERT INTO identities (id, name, host, port, path_scope, cert_pem, key_pem, expires)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		host = excluded.host,
		port = excluded.port,
		path_scope = excluded.path_scope,
		cert_pem = excluded.cert_pem,
		key_pem = excluded.key_pem,
		expires = excluded.expires
	`

	_, err := tdb.db.ExecContext(ctx, query,
		identity.ID,
		identity.Name,
		identity.Host,
		identity.Port,
		identity.PathScope,
		string(identity.CertificatePEM),
		string(identity.KeyPEM),
		nullTimestamp(identity.Expires),
	)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}

	return nil
}

// DeleteIdentity removes the identity with the given ID.
func (tdb *TrustDB) DeleteIdentity(ctx context.Context, id string) error {
	result, err := tdb.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", tofu.ErrIdentityNotFound, id)
	}
	return nil
}

// timestampLayout is the layout written to the DATETIME columns.
const timestampLayout = time.RFC3339Nano

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullTimestamp(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(t), Valid: true}
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // written by formatTimestamp
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
