// Package openai implements provider.Provider on top of the official
// OpenAI Go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/rhuss/weiche/pkg/provider"
)

const providerName = "openai"

// Config configures the OpenAI provider.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string

	// MaxRetries overrides the SDK retry count when non-nil.
	MaxRetries *int

	HTTPClient *http.Client
}

// Provider streams chat completions through the OpenAI SDK.
type Provider struct {
	client sdk.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates an OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
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
	return &Provider{client: sdk.NewClient(opts...)}, nil
}

// Name returns "openai".
func (p *Provider) Name() string {
	return providerName
}

// Stream starts a streaming chat completion. Request errors surface as a
// final EventError because the SDK only reports them once iteration begins.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(ev provider.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		calls := make(map[int64]*provider.ToolCall)
		var finish string
		var usage *provider.Usage

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
				usage = &provider.Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				if !send(provider.Event{Type: provider.EventTextDelta, Delta: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				call, ok := calls[tc.Index]
				if !ok {
					call = &provider.ToolCall{}
					calls[tc.Index] = call
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
				call.Arguments += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				send(provider.Event{Type: provider.EventError, Err: mapError(err)})
			}
			return
		}

		indexes := make([]int64, 0, len(calls))
		for idx := range calls {
			indexes = append(indexes, idx)
		}
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
		for _, idx := range indexes {
			if !send(provider.Event{Type: provider.EventToolCall, ToolCall: calls[idx]}) {
				return
			}
		}
		send(provider.Event{Type: provider.EventDone, FinishReason: finish, Usage: usage})
	}()
	return ch, nil
}

// ListModels pages through the models endpoint.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	iter := p.client.Models.ListAutoPaging(ctx)
	var out []provider.ModelInfo
	for iter.Next() {
		m := iter.Current()
		out = append(out, provider.ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// Close is a no-op; the SDK client holds no resources of its own.
func (p *Provider) Close() error {
	return nil
}

func buildParams(req *provider.Request) (sdk.ChatCompletionNewParams, error) {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toMessage(m))
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: sdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: sdk.Bool(true),
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = sdk.Int(int64(*req.MaxTokens))
	}

	for _, t := range req.Tools {
		fn := shared.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			fn.Description = sdk.String(t.Description)
		}
		if len(t.Parameters) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return params, fmt.Errorf("openai: tool %s has invalid parameter schema: %w", t.Name, err)
			}
			fn.Parameters = shared.FunctionParameters(schema)
		}
		params.Tools = append(params.Tools, sdk.ChatCompletionToolParam{Function: fn})
	}
	return params, nil
}

func toMessage(m provider.Message) sdk.ChatCompletionMessageParamUnion {
	switch m.Role {
	case provider.RoleTool:
		return sdk.ToolMessage(m.Content, m.ToolCallID)
	case provider.RoleAssistant:
		asst := sdk.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = sdk.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: sdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	default:
		return sdk.UserMessage(m.Content)
	}
}

// mapError converts SDK API errors into provider.Error so the transport can
// map status codes uniformly across backends.
func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &provider.Error{Provider: providerName, StatusCode: apiErr.StatusCode, Message: msg}
	}
	return &provider.Error{Provider: providerName, Message: err.Error()}
}
