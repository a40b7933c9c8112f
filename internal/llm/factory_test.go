package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"titanflow/internal/domain"
)

func secretsFrom(m map[string]string) SecretGetter {
	return func(name string) (string, error) {
		v, ok := m[name]
		if !ok {
			return "", errors.New("secret not found")
		}
		return v, nil
	}
}

func TestNewEngine_WhenProviderEmpty_ShouldDefaultToGemini(t *testing.T) {
	e, err := NewEngine(context.Background(), domain.EngineConfig{}, secretsFrom(map[string]string{GeminiSecret: "k"}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	g, ok := e.(*GeminiEngine)
	if !ok {
		t.Fatalf("want *GeminiEngine, got %T", e)
	}
	if g.model != DefaultGeminiModel {
		t.Errorf("want default model, got %q", g.model)
	}
}

func TestNewEngine_WhenOpenAI_ShouldReturnOpenAIEngine(t *testing.T) {
	e, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "OpenAI", Model: "gpt-x"}, secretsFrom(map[string]string{OpenAISecret: "k"}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if o, ok := e.(*OpenAIEngine); !ok || o.model != "gpt-x" {
		t.Errorf("want *OpenAIEngine with model gpt-x, got %T", e)
	}
}

func TestNewEngine_WhenOllama_ShouldNotNeedSecret(t *testing.T) {
	e, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "ollama"}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("want *OllamaEngine, got %T", e)
	}
}

func TestNewEngine_WhenScripted_ShouldLoadScript(t *testing.T) {
	path := writeScript(t, acmeScript)

	e, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "scripted", ScriptPath: path}, nil)

	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, ok := e.(*ScriptedEngine); !ok {
		t.Errorf("want *ScriptedEngine, got %T", e)
	}
}

func TestNewEngine_WhenScriptedWithoutPath_ShouldReturnError(t *testing.T) {
	if _, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "scripted"}, nil); err == nil {
		t.Error("expected error")
	}
}

func TestNewEngine_WhenProviderUnknown_ShouldReturnError(t *testing.T) {
	_, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "anthropic"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown engine provider") {
		t.Errorf("want unknown provider error, got %v", err)
	}
}

func TestNewEngine_WhenKeyMissing_ShouldNameTheSecret(t *testing.T) {
	tests := []struct {
		provider string
		secrets  map[string]string
		secret   string
	}{
		{"gemini", map[string]string{}, GeminiSecret},
		{"openai", map[string]string{OpenAISecret: " , "}, OpenAISecret},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			_, err := NewEngine(context.Background(), domain.EngineConfig{Provider: tt.provider}, secretsFrom(tt.secrets))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.secret) {
				t.Errorf("want hint naming %s, got %v", tt.secret, err)
			}
		})
	}
}

func TestNewEngine_WhenNoSecretSource_ShouldReturnError(t *testing.T) {
	if _, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "gemini"}, nil); err == nil {
		t.Error("expected error without a secret source")
	}
}

func TestNewEngine_WhenMultipleKeys_ShouldReturnKeyPoolEngine(t *testing.T) {
	e, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "openai"}, secretsFrom(map[string]string{OpenAISecret: "k1, k2,,k3"}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	kpe, ok := e.(*KeyPoolEngine)
	if !ok {
		t.Fatalf("want *KeyPoolEngine, got %T", e)
	}
	if kpe.pool.Len() != 3 || len(kpe.engines) != 3 {
		t.Errorf("want 3 keys and engines, got %d/%d", kpe.pool.Len(), len(kpe.engines))
	}
}

func TestNewEngine_WhenKeyPoolCreationFails_ShouldReturnError(t *testing.T) {
	orig := newKeyPoolFunc
	t.Cleanup(func() { newKeyPoolFunc = orig })
	newKeyPoolFunc = func([]string, time.Duration) (*KeyPool, error) {
		return nil, errors.New("boom")
	}

	_, err := NewEngine(context.Background(), domain.EngineConfig{Provider: "gemini"}, secretsFrom(map[string]string{GeminiSecret: "a,b"}))

	if err == nil || !strings.Contains(err.Error(), "gemini key pool") {
		t.Errorf("want key pool error, got %v", err)
	}
}

func TestSplitKeys(t *testing.T) {
	tests := map[string]int{
		"":            0,
		"one":         1,
		"a,b":         2,
		" a , b ,, c": 3,
		" , ":         0,
	}
	for in, want := range tests {
		if got := len(splitKeys(in)); got != want {
			t.Errorf("splitKeys(%q): want %d keys, got %d", in, want, got)
		}
	}
}
