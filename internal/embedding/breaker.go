package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/membria/membria-core/internal/logging"
)

// breakerEngine wraps an Engine's HTTP-bound calls in a circuit breaker
// so a provider outage fails fast instead of stalling every ingestion
// batch for ingest.embed_timeout_sec (§5's "HTTP calls to external
// embedding... servers" suspension point).
type breakerEngine struct {
	inner Engine
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps engine with a per-call circuit breaker: after 3
// consecutive failures the breaker opens for 30s, rejecting calls with
// gobreaker.ErrOpenState until a single trial request succeeds.
func WithBreaker(engine Engine) Engine {
	settings := gobreaker.Settings{
		Name:        engine.Name(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Get(logging.CategoryEmbedding).Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &breakerEngine{inner: engine, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) { return b.inner.Embed(ctx, text) })
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (b *breakerEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) { return b.inner.EmbedBatch(ctx, texts) })
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (b *breakerEngine) Dimensions() int { return b.inner.Dimensions() }
func (b *breakerEngine) Name() string    { return b.inner.Name() }
