package store

import (
	"strings"
	"testing"
)

func TestConnect_WhenValidFileURL_ShouldReturnDB(t *testing.T) {
	// Given: a valid in-memory URL
	dbURL := "file:connect_ok.db?mode=memory&cache=shared"

	// When: connecting
	conn, err := Connect(dbURL)

	// Then: should succeed and ping
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer conn.Close()
	if pingErr := conn.Ping(); pingErr != nil {
		t.Fatalf("expected successful ping, got: %v", pingErr)
	}
}

func TestConnect_WhenEmptyURL_ShouldReturnError(t *testing.T) {
	// Given: an empty URL
	// When: connecting
	conn, err := Connect("")

	// Then: should return an error
	if err == nil {
		conn.Close()
		t.Fatal("expected error for empty URL, got nil")
	}
}

func TestConnect_WhenInvalidPath_ShouldReturnError(t *testing.T) {
	// Given: a file URL under a path that cannot be a directory
	dbURL := "file:/dev/null/impossible.db"

	// When: connecting
	conn, err := Connect(dbURL)

	// Then: should return an error
	if err == nil {
		conn.Close()
		t.Fatal("expected error for invalid file URL, got nil")
	}
}

func TestConnect_WhenDriverUnknown_ShouldReturnOpenError(t *testing.T) {
	// Given: a broken driver name
	old := localDriver
	localDriver = "nonexistent_driver"
	defer func() { localDriver = old }()

	// When: connecting
	conn, err := Connect("file:driver.db?mode=memory&cache=shared")

	// Then: should return an error from sql.Open
	if err == nil {
		conn.Close()
		t.Fatal("expected error for unknown driver, got nil")
	}
	if !strings.Contains(err.Error(), "failed to open nonexistent_driver") {
		t.Errorf("error should mention the driver, got: %v", err)
	}
}

func TestResolveDriver_ShouldRouteBySchemeAndAddBusyTimeout(t *testing.T) {
	tests := []struct {
		in         string
		wantDriver string
		wantDSN    string
	}{
		{"libsql://db.turso.io?authToken=x", "libsql", "libsql://db.turso.io?authToken=x"},
		{"file:pricing.db", "sqlite", "file:pricing.db?_pragma=busy_timeout(5000)"},
		{"file:pricing.db?cache=shared", "sqlite", "file:pricing.db?cache=shared&_pragma=busy_timeout(5000)"},
		{"file:x.db?mode=memory&cache=shared", "sqlite", "file:x.db?mode=memory&cache=shared"},
	}
	for _, tt := range tests {
		driver, dsn := resolveDriver(tt.in)
		if driver != tt.wantDriver || dsn != tt.wantDSN {
			t.Errorf("resolveDriver(%q) = (%q, %q), want (%q, %q)", tt.in, driver, dsn, tt.wantDriver, tt.wantDSN)
		}
	}
}
