package config

import (
	"log/slog"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/service/embedding"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/urfave/cli/v3"
)

// Embedding provider names
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Embedding holds CLI flags for the embedding client
type Embedding struct {
	provider  string
	model     string
	baseURL   string
	apiKey    string `masq:"secret"`
	dimension int
	maxChars  int
	rps       float64
	burst     int
}

// Flags returns CLI flags for embedding configuration
func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai or ollama)",
			Category:    "Embedding",
			Value:       ProviderGemini,
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name for openai or ollama",
			Category:    "Embedding",
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_MODEL"),
			Destination: &e.model,
		},
		&cli.StringFlag{
			Name:        "embedding-base-url",
			Usage:       "Base URL of an OpenAI compatible endpoint or the Ollama server",
			Category:    "Embedding",
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_BASE_URL"),
			Destination: &e.baseURL,
		},
		&cli.StringFlag{
			Name:        "embedding-api-key",
			Usage:       "API key for the openai provider",
			Category:    "Embedding",
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_API_KEY", "OPENAI_API_KEY"),
			Destination: &e.apiKey,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector length",
			Category:    "Embedding",
			Value:       model.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_DIMENSION"),
			Destination: &e.dimension,
		},
		&cli.IntFlag{
			Name:        "embedding-max-chars",
			Usage:       "Characters kept from each text before embedding",
			Category:    "Embedding",
			Value:       model.MaxEmbeddingTextLength,
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_MAX_CHARS"),
			Destination: &e.maxChars,
		},
		&cli.FloatFlag{
			Name:        "embedding-rps",
			Usage:       "Embedding requests per second (0 disables limiting)",
			Category:    "Embedding",
			Value:       10,
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_RPS"),
			Destination: &e.rps,
		},
		&cli.IntFlag{
			Name:        "embedding-burst",
			Usage:       "Embedding request burst size",
			Category:    "Embedding",
			Value:       5,
			Sources:     cli.EnvVars("CASE_AGENT_EMBEDDING_BURST"),
			Destination: &e.burst,
		},
	}
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.String("model", e.model),
		slog.String("base_url", e.baseURL),
		slog.Int("dimension", e.dimension),
		slog.Float64("rps", e.rps),
	}
}

// Dimension returns the configured vector length
func (e *Embedding) Dimension() int {
	return e.dimension
}

// Configure creates the embedding client. The gemini provider reuses llm, which
// must then be non-nil.
func (e *Embedding) Configure(llm gollem.LLMClient) (*embedding.Client, error) {
	if e.dimension <= 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "embedding dimension must be positive", goerr.V(ValueKey, e.dimension))
	}

	provider, err := e.newProvider(llm)
	if err != nil {
		return nil, err
	}

	return embedding.New(provider,
		embedding.WithDimension(e.dimension),
		embedding.WithMaxChars(e.maxChars),
		embedding.WithRateLimit(e.rps, e.burst),
	), nil
}

func (e *Embedding) newProvider(llm gollem.LLMClient) (embedding.Provider, error) {
	switch e.provider {
	case ProviderGemini, "":
		if llm == nil {
			return nil, goerr.Wrap(ErrMissingParameter, "gemini embedding requires --gemini-project")
		}
		return embedding.NewGollemProvider(llm), nil

	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(e.apiKey)}
		if e.model != "" {
			opts = append(opts, openai.WithEmbeddingModel(e.model))
		}
		if e.baseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.baseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		embedder, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI embedder")
		}
		return embedding.NewLangchainProvider(embedder, ProviderOpenAI), nil

	case ProviderOllama:
		if e.model == "" {
			return nil, goerr.Wrap(ErrMissingParameter, "ollama embedding requires --embedding-model")
		}
		opts := []ollama.Option{ollama.WithModel(e.model)}
		if e.baseURL != "" {
			opts = append(opts, ollama.WithServerURL(e.baseURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Ollama client")
		}
		embedder, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Ollama embedder")
		}
		return embedding.NewLangchainProvider(embedder, ProviderOllama), nil

	default:
		return nil, goerr.Wrap(ErrUnknownProvider, "invalid embedding provider", goerr.V(ValueKey, e.provider))
	}
}
