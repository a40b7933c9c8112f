package cli

import (
	"database/sql"

	"titanflow/internal/config"
	"titanflow/internal/store"
	"titanflow/internal/toolchannel"
)

// Function variables for dependency injection in tests.
// Default values are the real implementations; tests may temporarily swap them.
var (
	configLoad         = config.Load
	configWriteDefault = config.WriteDefault
	configSave         = config.Save
	storeConnect       = func(url string) (*sql.DB, error) { return store.Connect(url) }
	probeTools         = toolchannel.Probe
)
