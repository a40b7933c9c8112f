package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	scoreBase        = 50
	scoreIndustry    = 30
	scoreLongName    = 10
	scoreMaxJitter   = 10
	scoreCeiling     = 100
	longNameMinRunes = 4
)

// ScoreTool computes a 0-100 VIP score from client name and industry.
type ScoreTool struct {
	// Jitter returns a value in [0, n). Defaults to math/rand/v2.
	Jitter func(n int) int
}

func (t *ScoreTool) Name() string { return ToolCalculateLeadScore }

func (t *ScoreTool) Description() string { return "Calculates a VIP score (0-100)." }

func (t *ScoreTool) Definition() string { return GenerateSchema(ScoreInput{}) }

func (t *ScoreTool) Call(_ context.Context, args json.RawMessage) (string, error) {
	var in ScoreInput
	if err := decodeArgs(t, args, &in); err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}
	jitter := t.Jitter
	if jitter == nil {
		jitter = rand.IntN
	}
	return strconv.Itoa(Score(in.ClientName, in.Industry, jitter(scoreMaxJitter+1))), nil
}

// Score applies the scoring rule with a caller-supplied jitter in [0, 10].
func Score(clientName, industry string, jitter int) int {
	score := scoreBase
	ind := strings.ToLower(industry)
	if strings.Contains(ind, "tech") || strings.Contains(ind, "ai") {
		score += scoreIndustry
	}
	if utf8.RuneCountInString(clientName) >= longNameMinRunes {
		score += scoreLongName
	}
	return min(score+jitter, scoreCeiling)
}
