package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EmbeddingProvider maps text to a fixed-dimension vector. Dimension must be
// known without performing any network or model work, since the store needs
// it to create the vector table before the first embed call.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// OpenAIProvider generates embeddings through the OpenAI API.
type OpenAIProvider struct {
	client    openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// OpenAIConfig holds provider construction parameters. Dimension 0 selects
// the model's native dimension.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		switch model {
		case openai.EmbeddingModelTextEmbedding3Large:
			dimension = 3072
		default:
			dimension = 1536
		}
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}, nil
}

func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: p.model,
	}
	if p.dimension > 0 && p.model != openai.EmbeddingModelTextEmbeddingAda002 {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}

	raw := resp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

// LazyProvider defers expensive provider construction (model load, warm-up)
// until the first Embed call. Concurrent first calls share one in-flight
// initialization, and an initialization failure is returned to the caller
// without being cached, so a later call retries.
type LazyProvider struct {
	factory   func(ctx context.Context) (EmbeddingProvider, error)
	dimension int

	mu       sync.Mutex
	provider EmbeddingProvider
}

// NewLazyProvider wraps factory in a single-flight lazily-initialized cell.
// dimension must match what the factory's provider will report.
func NewLazyProvider(dimension int, factory func(ctx context.Context) (EmbeddingProvider, error)) *LazyProvider {
	return &LazyProvider{factory: factory, dimension: dimension}
}

func (p *LazyProvider) Dimension() int {
	return p.dimension
}

func (p *LazyProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	provider, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return provider.Embed(ctx, text)
}

func (p *LazyProvider) get(ctx context.Context) (EmbeddingProvider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provider != nil {
		return p.provider, nil
	}
	provider, err := p.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize embedding provider: %w", err)
	}
	if provider.Dimension() != p.dimension {
		return nil, fmt.Errorf("provider dimension %d does not match configured %d",
			provider.Dimension(), p.dimension)
	}
	p.provider = provider
	return provider, nil
}
