package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"titanflow/internal/domain"
)

// defaultCooldownDuration is the time a rate-limited key stays in cooldown.
const defaultCooldownDuration = 60 * time.Second

// Secret names under which API keys are stored.
const (
	GeminiSecret = "gemini_api_key"
	OpenAISecret = "openai_api_key"
)

// SecretGetter returns a secret by name (e.g. "gemini_api_key"). Used to resolve API keys.
type SecretGetter func(name string) (string, error)

// NewEngine returns the ReasoningEngine selected by cfg.Provider: "gemini"
// (default), "openai", "ollama" or "scripted". getSecret resolves API keys
// for the hosted providers; a secret holding comma-separated keys yields a
// KeyPoolEngine.
func NewEngine(ctx context.Context, cfg domain.EngineConfig, getSecret SecretGetter) (domain.ReasoningEngine, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "gemini"
	}
	switch provider {
	case "gemini":
		return resolveKeyedEngine("gemini", GeminiSecret, getSecret, func(key string) (domain.ReasoningEngine, error) {
			return NewGeminiEngine(ctx, key, cfg.Model, cfg.BaseURL)
		})
	case "openai":
		return resolveKeyedEngine("openai", OpenAISecret, getSecret, func(key string) (domain.ReasoningEngine, error) {
			return NewOpenAIEngine(key, cfg.Model, cfg.BaseURL), nil
		})
	case "ollama":
		return NewOllamaEngine(cfg.Model, cfg.BaseURL, nil)
	case "scripted":
		if cfg.ScriptPath == "" {
			return nil, fmt.Errorf("scripted provider: engine.scriptPath is required")
		}
		return LoadScript(cfg.ScriptPath)
	default:
		return nil, fmt.Errorf("unknown engine provider %q (use: gemini, openai, ollama, scripted)", cfg.Provider)
	}
}

// splitKeys splits a raw secret value by commas, trims whitespace, and filters empty entries.
func splitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// newKeyPoolFunc is the KeyPool constructor. Package-level var for test injection.
var newKeyPoolFunc = NewKeyPool

// resolveKeyedEngine fetches the secret and returns a single engine for one
// key or a KeyPoolEngine for several.
func resolveKeyedEngine(providerName, secretName string, getSecret SecretGetter, makeEngine func(key string) (domain.ReasoningEngine, error)) (domain.ReasoningEngine, error) {
	if getSecret == nil {
		return nil, fmt.Errorf("%s provider: no secret source configured", providerName)
	}
	raw, err := getSecret(secretName)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w (store with: titanflow secrets set %s <key>)", providerName, err, secretName)
	}
	keys := splitKeys(raw)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s provider: API key not set (store with: titanflow secrets set %s <key>)", providerName, secretName)
	}
	if len(keys) == 1 {
		return makeEngine(keys[0])
	}
	pool, err := newKeyPoolFunc(keys, defaultCooldownDuration)
	if err != nil {
		return nil, fmt.Errorf("%s key pool: %w", providerName, err)
	}
	engines := make([]domain.ReasoningEngine, len(keys))
	for i, k := range keys {
		if engines[i], err = makeEngine(k); err != nil {
			return nil, err
		}
	}
	return NewKeyPoolEngine(pool, engines)
}
