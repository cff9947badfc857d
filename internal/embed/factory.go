package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ProviderType selects an embedding backend.
type ProviderType string

const (
	// ProviderOllama embeds through a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic embeds deterministically with no external
	// service, the offline fallback.
	ProviderStatic ProviderType = "static"
)

// EmbedderEnvVar overrides the configured provider:
// KBENGINE_EMBEDDER=ollama|static.
const EmbedderEnvVar = "KBENGINE_EMBEDDER"

// NewEmbedder builds the configured embedder, wrapped with retry and
// an in-process query cache. An unavailable Ollama degrades to the
// static embedder with a warning, unless the provider was selected
// explicitly through the environment.
func NewEmbedder(ctx context.Context, providerType ProviderType, model string) (Embedder, error) {
	explicit := false
	if env := strings.ToLower(os.Getenv(EmbedderEnvVar)); env != "" {
		providerType = ProviderType(env)
		explicit = true
	}

	var inner Embedder
	switch providerType {
	case ProviderStatic:
		inner = NewStaticEmbedder()
	case ProviderOllama, "":
		ollama := NewOllamaEmbedder(OllamaConfig{Model: model})
		if !ollama.Available(ctx) {
			if explicit {
				slog.Warn("ollama selected explicitly but unreachable, requests will fail until it starts")
				inner = ollama
				break
			}
			slog.Warn("ollama unreachable, using deterministic static embeddings")
			inner = NewStaticEmbedder()
			break
		}
		inner = ollama
	default:
		slog.Warn("unknown embedding provider, using static embeddings",
			slog.String("provider", string(providerType)))
		inner = NewStaticEmbedder()
	}

	cached, err := NewCachedEmbedder(NewRetryEmbedder(inner, 0), 0)
	if err != nil {
		return nil, err
	}
	return cached, nil
}
