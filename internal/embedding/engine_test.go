package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	require.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	require.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarityMismatchedLengthErrors(t *testing.T) {
	_, err := CosineSimilarity([]float32{1}, []float32{1, 2})
	require.Error(t, err)
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	_, err := NewEngine(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewEngineDefaultsOllama(t *testing.T) {
	engine, err := NewEngine(Config{Provider: "ollama"})
	require.NoError(t, err)
	require.Contains(t, engine.Name(), "ollama:")
}

type flakyEngine struct {
	failures int
	calls    int
}

func (f *flakyEngine) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("boom")
	}
	return []float32{1}, nil
}

func (f *flakyEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("unused")
}

func (f *flakyEngine) Dimensions() int { return 1 }
func (f *flakyEngine) Name() string    { return "flaky" }

func TestWithBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyEngine{failures: 10}
	engine := WithBreaker(inner)

	for i := 0; i < 3; i++ {
		_, err := engine.Embed(context.Background(), "x")
		require.Error(t, err)
	}
	// Breaker should now be open: the call fails without reaching inner.
	callsBefore := inner.calls
	_, err := engine.Embed(context.Background(), "x")
	require.Error(t, err)
	require.Equal(t, callsBefore, inner.calls)
}
