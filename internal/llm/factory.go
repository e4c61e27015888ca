package llm

import (
	"fmt"
	"time"

	"receipt-agent/internal/common/config"
	"receipt-agent/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// LocalEmbeddingModel selects HashEmbedder instead of a remote embeddings endpoint.
const LocalEmbeddingModel = "local-hash"

// Clients bundles the model capabilities built from configuration.
type Clients struct {
	Completer Completer
	Embedder  Embedder
	Vision    Vision
}

// NewFromConfig builds the clients. Vision always goes through the OpenAI-compatible endpoint;
// completion follows cfg.Provider. When rdb is non-nil remote embeddings are cached in Redis.
func NewFromConfig(cfg config.LLMConfig, rdb *redis.Client, log logger.Logger) (*Clients, error) {
	opts := Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Seed:        cfg.Seed,
	}
	oa := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, opts, cfg.VisionModel, cfg.EmbeddingModel)

	out := &Clients{Vision: oa}

	switch cfg.Provider {
	case "", "openai":
		out.Completer = oa
	case "anthropic":
		aopts := opts
		aopts.Model = cfg.AnthropicModel
		out.Completer = NewAnthropicClient(cfg.AnthropicAPIKey, aopts)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	if cfg.EmbeddingModel == LocalEmbeddingModel {
		out.Embedder = NewHashEmbedder(512)
	} else if rdb != nil {
		out.Embedder = NewCachedEmbedder(oa, rdb, cfg.EmbeddingModel, 30*24*time.Hour, log)
	} else {
		out.Embedder = oa
	}

	log.Info("llm clients ready", map[string]interface{}{
		"provider":       cfg.Provider,
		"model":          cfg.Model,
		"embeddingModel": cfg.EmbeddingModel,
	})
	return out, nil
}
