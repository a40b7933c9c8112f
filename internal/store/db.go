package store

import (
	"database/sql"
	"fmt"
	"strings"

	// Import the libSQL driver — registers "libsql" with database/sql.
	// Handles remote URLs (libsql://, https://, wss://).
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Import the pure-Go SQLite driver for local file: URLs.
	_ "modernc.org/sqlite"
)

// Driver names, package-level so tests can force the open error path.
var (
	remoteDriver = "libsql"
	localDriver  = "sqlite"
)

// busyTimeout lets concurrent tool-server processes share one local file.
const busyTimeout = "_pragma=busy_timeout(5000)"

// Connect opens the store database and verifies it with a ping.
//
// Supported URL schemes:
//
//	Local file:   "file:path/to/pricing.db"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Connect(dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("store: database URL must not be empty")
	}

	driver, dsn := resolveDriver(dbURL)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", driver, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to connect to database: %w", err)
	}

	return db, nil
}

func resolveDriver(dbURL string) (string, string) {
	if !strings.HasPrefix(dbURL, "file:") {
		return remoteDriver, dbURL
	}
	if strings.Contains(dbURL, "busy_timeout") || strings.Contains(dbURL, "mode=memory") {
		return localDriver, dbURL
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return localDriver, dbURL + sep + busyTimeout
}
