package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o-mini"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
)

// Config configures the OpenAI-compatible generator.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// System is an optional system message sent ahead of every prompt.
	System string

	// Timeout bounds each request, retries included.
	Timeout time.Duration

	// MaxRetries is passed to the client. Negative disables retries.
	MaxRetries int

	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// OpenAI is a Generator backed by the chat completions API.
type OpenAI struct {
	client  openaigo.Client
	model   string
	system  string
	timeout time.Duration
}

// NewOpenAI returns a Generator backed by the OpenAI (or compatible) chat API.
// An empty API key is rejected; use Offline for keyless deployments.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(retries),
		option.WithRequestTimeout(timeout),
	)
	return &OpenAI{client: client, model: model, system: cfg.System, timeout: timeout}, nil
}

// Generate sends prompt as a single user message and returns the first
// choice's content.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, 2)
	if g.system != "" {
		messages = append(messages, openaigo.SystemMessage(g.system))
	}
	messages = append(messages, openaigo.UserMessage(prompt))

	resp, err := g.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		genErr := &GenerationError{Op: "chat completion", Err: err}
		var apiErr *openaigo.Error
		if errors.As(err, &apiErr) {
			genErr.StatusCode = apiErr.StatusCode
		}
		return "", genErr
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Op: "chat completion", Err: ErrEmptyResponse}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &GenerationError{Op: "chat completion", Err: ErrEmptyResponse}
	}
	return text, nil
}
