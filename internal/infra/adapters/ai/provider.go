package ai

import (
	"context"
	"time"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/infra/redis"
)

// FileChatProvider extends the chat port with document-grounded prompts.
type FileChatProvider interface {
	adapter.ChatProvider
	ChatWithFile(ctx context.Context, system, user string, data []byte, mimeType string) (string, error)
	Name() string
}

var (
	_ FileChatProvider = (*OpenAIProvider)(nil)
	_ FileChatProvider = (*GeminiProvider)(nil)
	_ FileChatProvider = (*NoopProvider)(nil)
)

// LimitedProvider enforces a per-minute call quota before delegating.
type LimitedProvider struct {
	inner   FileChatProvider
	limiter *redis.RateLimiter
	limit   int
}

func NewLimitedProvider(inner FileChatProvider, limiter *redis.RateLimiter, callsPerMinute int) *LimitedProvider {
	return &LimitedProvider{inner: inner, limiter: limiter, limit: callsPerMinute}
}

func (p *LimitedProvider) Name() string { return p.inner.Name() }

func (p *LimitedProvider) Chat(ctx context.Context, system, user string) (string, error) {
	if err := p.allow(ctx); err != nil {
		return "", err
	}
	return p.inner.Chat(ctx, system, user)
}

func (p *LimitedProvider) ChatWithFile(ctx context.Context, system, user string, data []byte, mimeType string) (string, error) {
	if err := p.allow(ctx); err != nil {
		return "", err
	}
	return p.inner.ChatWithFile(ctx, system, user, data, mimeType)
}

func (p *LimitedProvider) allow(ctx context.Context) error {
	if p.limiter == nil || p.limit <= 0 {
		return nil
	}
	ok, err := p.limiter.Allow(ctx, redis.AICallKey(p.inner.Name()), p.limit, time.Minute)
	if err != nil {
		// A limiter outage should not block the pipeline.
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}
