package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/port/analyzer"
	"github.com/Strob0t/AgentForge/internal/port/cache"
)

type cachedClassification struct {
	Agent string `json:"agent"`
}

// CachedAnalyzer memoizes completion classifications. Identical output
// classified against the same candidates yields the same answer, which
// keeps routing reproducible across retries and resumed tasks.
type CachedAnalyzer struct {
	inner analyzer.CompletionAnalyzer
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedAnalyzer wraps inner with c.
func NewCachedAnalyzer(inner analyzer.CompletionAnalyzer, c cache.Cache, ttl time.Duration) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, cache: c, ttl: ttl}
}

// Classify implements analyzer.CompletionAnalyzer.
func (a *CachedAnalyzer) Classify(ctx context.Context, last step.Step, candidates []string) (string, error) {
	key := classificationKey(last, candidates)

	if raw, ok, err := a.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "analyzer cache get", "error", err)
	} else if ok {
		var c cachedClassification
		if err := json.Unmarshal(raw, &c); err == nil {
			return c.Agent, nil
		}
	}

	agent, err := a.inner.Classify(ctx, last, candidates)
	if err != nil {
		return "", err
	}

	raw, _ := json.Marshal(cachedClassification{Agent: agent})
	if err := a.cache.Set(ctx, key, raw, a.ttl); err != nil {
		slog.WarnContext(ctx, "analyzer cache set", "error", err)
	}
	return agent, nil
}

func classificationKey(last step.Step, candidates []string) string {
	h := sha256.New()
	h.Write([]byte(last.AgentName))
	h.Write([]byte{0})
	h.Write([]byte(last.Text()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(candidates, ",")))
	return "analyzer:" + hex.EncodeToString(h.Sum(nil))
}
