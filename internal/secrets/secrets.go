package secrets

import "errors"

// SecretsManager stores and retrieves secrets (e.g. API keys) without writing them to config.
// The file implementation seals every value with AES-GCM.
type SecretsManager interface {
	// Get returns the secret for the given key (e.g. "gemini_api_key"). Returns ErrNotFound if missing.
	Get(key string) (string, error)
	// Set stores the secret for the given key. Overwrites if the key already exists.
	Set(key, value string) error
	// Delete removes the secret for the given key. No error if the key did not exist.
	Delete(key string) error
}

// ErrNotFound is returned when a secret is not found.
var ErrNotFound = errors.New("secret not found")
