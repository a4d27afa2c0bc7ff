// Package embedding generates the vectors persisted by §4.M's
// knowledge-base ingester, pluggable between a local Ollama server and
// Google's GenAI embedding API. Adapted from the teacher's
// internal/embedding package (same Engine interface, same two backends),
// with HTTP calls to the embedding provider wrapped in a sony/gobreaker
// circuit breaker so a flapping provider degrades to fast failures
// instead of hanging every ingestion batch.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/membria/membria-core/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Config selects and configures an embedding backend (§6: embedding.*
// configuration keys).
type Config struct {
	Provider       string
	OllamaEndpoint string
	OllamaModel    string
	GenAIAPIKey    string
	GenAIModel     string
	TaskType       string
}

// NewEngine builds the Engine selected by cfg.Provider ("ollama" or
// "genai"), each wrapped in its own circuit breaker.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	log := logging.Get(logging.CategoryEmbedding)
	log.Info("creating embedding engine with provider=%s", cfg.Provider)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		log.Error("failed to create embedding engine: %v", err)
		return nil, err
	}

	log.Info("embedding engine created: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return WithBreaker(engine), nil
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
