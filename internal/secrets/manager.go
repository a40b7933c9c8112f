package secrets

import (
	"errors"
	"os"
	"strings"
)

// DefaultManager returns a SecretsManager for UserConfigDir/titanflow/.secrets.
func DefaultManager() (SecretsManager, error) {
	path, err := DefaultSecretsPath()
	if err != nil {
		return nil, err
	}
	return NewFileManager(path)
}

// envAliases maps secret names to the environment variables the hosted SDKs
// read on their own.
var envAliases = map[string]string{
	"gemini_api_key": "GOOGLE_API_KEY",
	"openai_api_key": "OPENAI_API_KEY",
}

// EnvName returns the environment variable consulted for a secret:
// "gemini_api_key" maps to GOOGLE_API_KEY, anything else to
// TITANFLOW_<NAME>.
func EnvName(key string) string {
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	return "TITANFLOW_" + strings.ToUpper(key)
}

// lookupEnv is os.LookupEnv. Package-level var for test injection.
var lookupEnv = os.LookupEnv

// Lookup returns the secret from m, falling back to the environment when m
// is nil or does not hold it. Errors other than ErrNotFound are returned
// as-is so a corrupt secrets file is not masked.
func Lookup(m SecretsManager, key string) (string, error) {
	if m != nil {
		v, err := m.Get(key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	if v, ok := lookupEnv(EnvName(key)); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	return "", ErrNotFound
}

// Getter adapts Lookup to a func(name) signature for engine factories.
func Getter(m SecretsManager) func(string) (string, error) {
	return func(key string) (string, error) { return Lookup(m, key) }
}
