// Package goopenai provides an LLM provider for OpenAI-compatible endpoints
// (DeepSeek, Moonshot, vLLM, LM Studio, Azure deployments, ...) backed by
// github.com/sashabaranov/go-openai.
//
// Unlike package openai it does not assume the official API: a base URL is
// usually required and JSON mode is only requested when explicitly enabled
// with [WithJSONMode], since many compatible servers reject response_format.
package goopenai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	"github.com/MrWong99/lingotutor/pkg/types"
)

// Provider implements llm.Provider against any OpenAI-compatible chat API.
type Provider struct {
	client   *openai.Client
	model    string
	jsonMode bool
	caps     types.ModelCapabilities
}

type config struct {
	baseURL      string
	orgID        string
	jsonMode     bool
	httpClient   *http.Client
	contextWin   int
	maxOutTokens int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL sets the API base URL (e.g. "http://localhost:8000/v1").
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the organization header.
func WithOrganization(org string) Option {
	return func(c *config) { c.orgID = org }
}

// WithJSONMode declares that the endpoint honours response_format=json_object.
func WithJSONMode(enabled bool) Option {
	return func(c *config) { c.jsonMode = enabled }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithContextWindow overrides the advertised context window and output limit.
func WithContextWindow(contextWindow, maxOutputTokens int) Option {
	return func(c *config) {
		c.contextWin = contextWindow
		c.maxOutTokens = maxOutputTokens
	}
}

// New constructs a Provider. apiKey may be empty for local servers that do not
// authenticate.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("goopenai: model must not be empty")
	}

	cfg := &config{contextWin: 32_768, maxOutTokens: 4_096}
	for _, o := range opts {
		o(cfg)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	if cfg.orgID != "" {
		clientCfg.OrgID = cfg.orgID
	}
	if cfg.httpClient != nil {
		clientCfg.HTTPClient = cfg.httpClient
	}

	return &Provider{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		jsonMode: cfg.jsonMode,
		caps: types.ModelCapabilities{
			ContextWindow:    cfg.contextWin,
			MaxOutputTokens:  cfg.maxOutTokens,
			SupportsJSONMode: cfg.jsonMode,
		},
	}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("goopenai: chat completion: no messages")
	}

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("goopenai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("goopenai: empty choices in response")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.caps
}

func (p *Provider) buildRequest(req llm.CompletionRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode && p.jsonMode {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
