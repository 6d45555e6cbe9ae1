package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/membank-io/membank/internal/errors"
)

// Remote concurrency bounds. At most maxInFlight requests run against the
// upstream; overflow callers wait in a bounded admission queue or fail
// Overloaded immediately.
const (
	defaultMaxInFlight = 8
	defaultQueueDepth  = 64
	defaultCallTimeout = 10 * time.Second
	defaultRemoteModel = "text-embedding-3-small"
)

// RemoteConfig configures the OpenAI-compatible embedding client.
type RemoteConfig struct {
	// APIKey authenticates against the upstream. Comes from the
	// environment; never from config files.
	APIKey string

	// BaseURL overrides the upstream endpoint for self-hosted gateways.
	BaseURL string

	// Model is the embedding model name (default text-embedding-3-small).
	Model string

	// Dimensions is the expected vector dimension. Responses with a
	// different dimension are rejected.
	Dimensions int

	// MaxInFlight bounds concurrent upstream requests (default 8).
	MaxInFlight int

	// QueueDepth bounds waiting callers (default 64).
	QueueDepth int

	// CallTimeout is the per-call deadline (default 10s).
	CallTimeout time.Duration

	// Retry overrides the backoff schedule; nil uses the remote default
	// (5 retries, 200ms initial, x2, +/-20% jitter).
	Retry *apperrors.RetryConfig
}

// RemoteEmbedder calls an OpenAI-compatible embeddings API with bounded
// concurrency, retry with backoff, and a circuit breaker so a dead
// upstream fails fast instead of eating the retry budget.
type RemoteEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dims      int
	tag       string
	timeout   time.Duration
	retry     apperrors.RetryConfig
	sem       *semaphore.Weighted
	admission chan struct{}
	breaker   *gobreaker.CircuitBreaker
}

// NewRemoteEmbedder creates the remote client. The API key is required
// unless a BaseURL points at an unauthenticated gateway.
func NewRemoteEmbedder(cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote embedding requires an API key or base URL")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("remote embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Model == "" {
		cfg.Model = defaultRemoteModel
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	retry := apperrors.RemoteRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &RemoteEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   openai.EmbeddingModel(cfg.Model),
		dims:    cfg.Dimensions,
		tag:     "remote-" + cfg.Model,
		timeout: cfg.CallTimeout,
		retry:   retry,
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		// Admission covers both running and queued callers.
		admission: make(chan struct{}, cfg.MaxInFlight+cfg.QueueDepth),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedding",
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}, nil
}

// Embed generates the embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one upstream call.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Admission control: fail fast when the queue is full.
	select {
	case e.admission <- struct{}{}:
		defer func() { <-e.admission }()
	default:
		return nil, apperrors.Overloaded("embedding")
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDeadlineExceeded, "embedding admission", err)
	}
	defer e.sem.Release(1)

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = NormalizeText(t)
	}

	return apperrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
		return e.callOnce(ctx, input)
	})
}

// callOnce performs one upstream request through the circuit breaker.
func (e *RemoteEmbedder) callOnce(ctx context.Context, input []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: input,
			Model: e.model,
		})
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, e.classify(err)
	}

	resp := result.(openai.EmbeddingResponse)
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embedding response count mismatch: got %d, expected %d",
			len(resp.Data), len(input))
	}

	vectors := make([][]float32, len(input))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dims {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d",
				len(data.Embedding), e.dims)
		}
		vec := make([]float32, len(data.Embedding))
		copy(vec, data.Embedding)
		vectors[data.Index] = normalizeVector(vec)
	}
	return vectors, nil
}

// classify maps upstream failures onto the error vocabulary. Rate limits
// and 5xx are transient; an open breaker fails fast without retrying.
func (e *RemoteEmbedder) classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		fast := apperrors.Wrap(apperrors.KindOverloaded, "embedding upstream unavailable", err)
		fast.Retryable = false
		return fast
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.DeadlineExceeded("embedding call")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return apperrors.Wrap(apperrors.KindOverloaded, "embedding rate limited", err)
		case apiErr.HTTPStatusCode >= 500:
			return apperrors.Wrap(apperrors.KindInternal, "embedding upstream error", err).AsRetryable()
		default:
			return apperrors.Wrap(apperrors.KindInternal, "embedding request rejected", err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 500 {
		return apperrors.Wrap(apperrors.KindInternal, "embedding upstream error", err).AsRetryable()
	}

	// Transport-level failures (connection refused, reset) are transient.
	return apperrors.Wrap(apperrors.KindInternal, "embedding call failed", err).AsRetryable()
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int { return e.dims }

// Tag returns the provider tag.
func (e *RemoteEmbedder) Tag() string { return e.tag }

// Available probes the upstream with a tiny request.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := e.Embed(probeCtx, "ping")
	return err == nil
}

// Close releases resources. The HTTP client needs no explicit shutdown.
func (e *RemoteEmbedder) Close() error { return nil }
