package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"titanflow/internal/domain"
)

// KeyPool rotates API keys round-robin. A key marked with MarkCooldown is
// skipped by Next until its cooldown expires. Safe for concurrent use.
type KeyPool struct {
	keys        []string
	mu          sync.Mutex
	nextIdx     int
	cooldowns   []time.Time   // parallel to keys; zero means available
	cooldownDur time.Duration // how long a key stays in cooldown
	nowFunc     func() time.Time
}

// NewKeyPool creates a KeyPool from the given keys with the specified cooldown duration.
// Returns an error if keys is empty or nil.
func NewKeyPool(keys []string, cooldownDur time.Duration) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keypool: at least one key is required")
	}
	return &KeyPool{
		keys:        keys,
		cooldowns:   make([]time.Time, len(keys)),
		cooldownDur: cooldownDur,
		nowFunc:     time.Now,
	}, nil
}

// Next returns the next available key using round-robin, skipping keys in cooldown.
// Returns the key, its index, and an error if all keys are in cooldown.
func (kp *KeyPool) Next() (string, int, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.nowFunc()
	n := len(kp.keys)

	for i := 0; i < n; i++ {
		idx := (kp.nextIdx + i) % n
		if kp.cooldowns[idx].IsZero() || now.After(kp.cooldowns[idx]) {
			kp.nextIdx = (idx + 1) % n
			return kp.keys[idx], idx, nil
		}
	}

	return "", -1, fmt.Errorf("keypool: all %d keys are in cooldown", n)
}

// MarkCooldown puts the key at the given index into cooldown for the configured duration.
// Out-of-range indices are silently ignored.
func (kp *KeyPool) MarkCooldown(idx int) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if idx < 0 || idx >= len(kp.keys) {
		return
	}
	kp.cooldowns[idx] = kp.nowFunc().Add(kp.cooldownDur)
}

// Len returns the total number of keys in the pool.
func (kp *KeyPool) Len() int {
	return len(kp.keys)
}

// Available returns the number of keys not currently in cooldown.
func (kp *KeyPool) Available() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.nowFunc()
	count := 0
	for _, cd := range kp.cooldowns {
		if cd.IsZero() || now.After(cd) {
			count++
		}
	}
	return count
}

// =============================================================================
// Rate-limit detection
// =============================================================================

// isRateLimitError returns true when the error indicates a 429 / rate-limit
// response. SDK error types are checked first, then the message text.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var gerr genai.APIError
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// =============================================================================
// KeyPoolEngine (ReasoningEngine decorator)
// =============================================================================

// KeyPoolEngine wraps one engine per API key and rotates between them using a
// KeyPool. On a 429 the current key goes into cooldown and the round trip is
// tried once more with the next available key.
type KeyPoolEngine struct {
	pool    *KeyPool
	engines []domain.ReasoningEngine
}

// NewKeyPoolEngine creates a KeyPoolEngine. The pool and engines must have matching lengths.
func NewKeyPoolEngine(pool *KeyPool, engines []domain.ReasoningEngine) (*KeyPoolEngine, error) {
	if pool == nil {
		return nil, fmt.Errorf("keypool engine: pool must not be nil")
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("keypool engine: at least one engine is required")
	}
	if pool.Len() != len(engines) {
		return nil, fmt.Errorf("keypool engine: pool size (%d) must match engine count (%d)", pool.Len(), len(engines))
	}
	return &KeyPoolEngine{pool: pool, engines: engines}, nil
}

// Reply implements domain.ReasoningEngine.
func (k *KeyPoolEngine) Reply(ctx context.Context, turns []domain.Turn, tools []domain.ToolDefinition) (*domain.EngineReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, idx, err := k.pool.Next()
	if err != nil {
		return nil, err
	}

	reply, replyErr := k.engines[idx].Reply(ctx, turns, tools)
	if replyErr == nil || !isRateLimitError(replyErr) {
		return reply, replyErr
	}

	k.pool.MarkCooldown(idx)

	_, next, err := k.pool.Next()
	if err != nil {
		return nil, fmt.Errorf("all keys in cooldown after rate limit: %w", replyErr)
	}
	return k.engines[next].Reply(ctx, turns, tools)
}

var _ domain.ReasoningEngine = (*KeyPoolEngine)(nil)
