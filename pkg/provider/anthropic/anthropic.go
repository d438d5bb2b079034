// Package anthropic implements provider.Provider for the Anthropic Messages
// API using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/rhuss/weiche/pkg/provider"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

// MessagesClient is the subset of the SDK used for streaming. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Config configures the Anthropic provider.
type Config struct {
	APIKey  string
	BaseURL string

	// MaxTokens is sent when a request does not set one. Default: 4096.
	MaxTokens int

	MaxRetries *int
	HTTPClient *http.Client
}

// Provider streams messages from Anthropic.
type Provider struct {
	client    sdk.Client
	messages  MessagesClient
	maxTokens int
}

var _ provider.Provider = (*Provider)(nil)

// New creates an Anthropic provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	p := &Provider{client: sdk.NewClient(opts...), maxTokens: cfg.MaxTokens}
	p.messages = &p.client.Messages
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	return p, nil
}

// newWithMessages builds a Provider around a custom messages client.
func newWithMessages(msgs MessagesClient) *Provider {
	return &Provider{messages: msgs, maxTokens: defaultMaxTokens}
}

// Name returns "anthropic".
func (p *Provider) Name() string {
	return providerName
}

// Stream starts a streaming Messages request.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.messages.NewStreaming(ctx, params)
	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer stream.Close()
		newStreamProcessor(ctx, ch).run(stream)
	}()
	return ch, nil
}

// ListModels pages through the models endpoint.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	iter := p.client.Models.ListAutoPaging(ctx, sdk.ModelListParams{})
	var out []provider.ModelInfo
	for iter.Next() {
		out = append(out, provider.ModelInfo{ID: iter.Current().ID, OwnedBy: providerName})
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) buildParams(req *provider.Request) (sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(req.Model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	for _, t := range req.Tools {
		schema, err := toolInputSchema(t.Parameters)
		if err != nil {
			return sdk.MessageNewParams{}, fmt.Errorf("anthropic: tool %s has invalid parameter schema: %w", t.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			u.OfTool.Description = sdk.String(t.Description)
		}
		params.Tools = append(params.Tools, u)
	}
	return params, nil
}

// encodeMessages maps the conversation onto Anthropic's two-role model.
// Consecutive tool results are folded into a single user message.
func encodeMessages(msgs []provider.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	var pendingResults []sdk.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case provider.RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		case provider.RoleAssistant:
			flush()
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, toolInput(tc.Arguments), tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	flush()

	if len(out) == 0 {
		return nil, errors.New("anthropic: request has no messages")
	}
	return out, nil
}

// toolInput returns the arguments as raw JSON, or an empty object when the
// model produced something that does not parse.
func toolInput(args string) any {
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	return map[string]any{}
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &provider.Error{Provider: providerName, StatusCode: apiErr.StatusCode, Message: http.StatusText(apiErr.StatusCode)}
	}
	return &provider.Error{Provider: providerName, Message: err.Error()}
}
