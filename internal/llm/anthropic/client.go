// Package anthropic adapts narrata's llm.Provider contract to the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"narrata/internal/config"
	"narrata/internal/llm"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/observability"
)

const defaultMaxTokens int64 = 1024

type Client struct {
	sdk   anthropic.Client
	model string
}

func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) buildParams(req llm.Request) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	converted := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "assistant":
			if strings.TrimSpace(m.Content) != "" {
				converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			}
		default:
			blocks := []anthropic.ContentBlockParamUnion{}
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, media := range req.Media {
				if strings.HasPrefix(media.MIMEType, "image/") && len(media.Data) > 0 {
					blocks = append(blocks, anthropic.NewImageBlockBase64(media.MIMEType, base64.StdEncoding.EncodeToString(media.Data)))
				}
			}
			if len(blocks) > 0 {
				converted = append(converted, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	if len(converted) == 0 {
		return anthropic.MessageNewParams{}, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "no user content to send")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(req.Model)),
		Messages:  converted,
		System:    system,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params, nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Response{}, err
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Chat", string(params.Model), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("anthropic_chat_error")
		return llm.Response{}, classifyHTTPError(err)
	}

	out := responseFromMessage(resp)
	llm.LogRedactedResponse(ctx, out)
	llm.RecordTokenAttributes(span, out.PromptTokens, out.CompletionTokens)
	llm.RecordTokenMetrics(ctx, string(params.Model), out.PromptTokens, out.CompletionTokens)
	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).
		Int("prompt_tokens", out.PromptTokens).Int("completion_tokens", out.CompletionTokens).
		Msg("anthropic_chat_ok")
	return out, nil
}

func (c *Client) ChatStream(ctx context.Context, req llm.Request, yield func(llm.Chunk) error) error {
	params, err := c.buildParams(req)
	if err != nil {
		return err
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic ChatStream", string(params.Model), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)
	log := observability.LoggerWithTrace(ctx)

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropic.Message
	for stream.Next() {
		event := stream.Current()
		_ = acc.Accumulate(event)
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if err := yield(llm.Chunk{Text: text.Text}); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Msg("anthropic_stream_error")
		return classifyHTTPError(err)
	}

	out := responseFromMessage(&acc)
	llm.RecordTokenAttributes(span, out.PromptTokens, out.CompletionTokens)
	llm.RecordTokenMetrics(ctx, string(params.Model), out.PromptTokens, out.CompletionTokens)
	return yield(llm.Chunk{IsFinal: true, FinishReason: "stop"})
}

func responseFromMessage(resp *anthropic.Message) llm.Response {
	if resp == nil {
		return llm.Response{}
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return llm.Response{
		Text:             sb.String(),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
}

// classifyHTTPError surfaces the Anthropic SDK's HTTP status (when present)
// as a narrataerrors.HTTPError so internal/llm's retry classifier can act on
// it; the SDK wraps non-2xx responses in *anthropic.Error.
func classifyHTTPError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return narrataerrors.HTTPError(apiErr.StatusCode, apiErr.Error())
	}
	return fmt.Errorf("anthropic: %w", err)
}
