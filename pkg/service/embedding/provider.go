package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/tmc/langchaingo/embeddings"
)

// Provider produces a raw embedding for one text
type Provider interface {
	Embed(ctx context.Context, text string, dimension int) ([]float32, error)
	Name() string
}

type gollemProvider struct {
	client gollem.LLMClient
}

// NewGollemProvider embeds through a gollem LLM client (Gemini by default)
func NewGollemProvider(client gollem.LLMClient) Provider {
	return &gollemProvider{client: client}
}

func (p *gollemProvider) Name() string { return "gollem" }

func (p *gollemProvider) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	vectors, err := p.client.GenerateEmbedding(ctx, dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(vectors) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	result := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		result[i] = float32(v)
	}
	return result, nil
}

type langchainProvider struct {
	embedder embeddings.Embedder
	name     string
}

// NewLangchainProvider embeds through a langchaingo embedder (OpenAI or Ollama)
func NewLangchainProvider(embedder embeddings.Embedder, name string) Provider {
	return &langchainProvider{embedder: embedder, name: name}
}

func (p *langchainProvider) Name() string { return p.name }

func (p *langchainProvider) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	vectors, err := p.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed document", goerr.V("provider", p.name))
	}
	if len(vectors) == 0 {
		return nil, goerr.New("no embedding returned", goerr.V("provider", p.name))
	}
	return vectors[0], nil
}
