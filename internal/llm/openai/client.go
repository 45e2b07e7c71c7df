// Package openai adapts narrata's llm.Provider contract to the OpenAI
// Chat Completions API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
	"narrata/internal/observability"
)

type Client struct {
	sdk   sdk.Client
	model string
}

func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func lastUserIndex(msgs []llm.Message) int {
	idx := -1
	for i, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role == "user" || role == "" {
			idx = i
		}
	}
	return idx
}

func (c *Client) buildParams(req llm.Request) sdk.ChatCompletionNewParams {
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(c.pickModel(req.Model))}
	lastUser := lastUserIndex(req.Messages)
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for i, m := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system":
			msgs = append(msgs, sdk.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
		default:
			if i == lastUser && len(req.Media) > 0 {
				parts := []sdk.ChatCompletionContentPartUnionParam{sdk.TextContentPart(m.Content)}
				for _, media := range req.Media {
					if !strings.HasPrefix(media.MIMEType, "image/") {
						continue
					}
					url := media.URL
					if url == "" && len(media.Data) > 0 {
						url = fmt.Sprintf("data:%s;base64,%s", media.MIMEType, base64.StdEncoding.EncodeToString(media.Data))
					}
					if url != "" {
						parts = append(parts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: url}))
					}
				}
				msgs = append(msgs, sdk.UserMessage(parts))
			} else {
				msgs = append(msgs, sdk.UserMessage(m.Content))
			}
		}
	}
	params.Messages = msgs
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return params
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	params := c.buildParams(req)
	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", string(params.Model), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("openai_chat_error")
		return llm.Response{}, classifyHTTPError(err)
	}

	var out llm.Response
	if len(comp.Choices) > 0 {
		out.Text = comp.Choices[0].Message.Content
	}
	out.PromptTokens = int(comp.Usage.PromptTokens)
	out.CompletionTokens = int(comp.Usage.CompletionTokens)

	llm.LogRedactedResponse(ctx, out)
	llm.RecordTokenAttributes(span, out.PromptTokens, out.CompletionTokens)
	llm.RecordTokenMetrics(ctx, string(params.Model), out.PromptTokens, out.CompletionTokens)
	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).
		Int("prompt_tokens", out.PromptTokens).Int("completion_tokens", out.CompletionTokens).
		Msg("openai_chat_ok")
	return out, nil
}

func (c *Client) ChatStream(ctx context.Context, req llm.Request, yield func(llm.Chunk) error) error {
	params := c.buildParams(req)
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI ChatStream", string(params.Model), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)
	log := observability.LoggerWithTrace(ctx)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var promptTokens, completionTokens int
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			promptTokens = int(chunk.Usage.PromptTokens)
			completionTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if err := yield(llm.Chunk{Text: delta.Content}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Msg("openai_stream_error")
		return classifyHTTPError(err)
	}

	llm.RecordTokenAttributes(span, promptTokens, completionTokens)
	llm.RecordTokenMetrics(ctx, string(params.Model), promptTokens, completionTokens)
	return yield(llm.Chunk{IsFinal: true, FinishReason: "stop"})
}

// classifyHTTPError surfaces the OpenAI SDK's HTTP status as a
// narrataerrors.HTTPError so internal/llm's retry classifier can act on it.
func classifyHTTPError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return narrataerrors.HTTPError(apiErr.StatusCode, apiErr.Error())
	}
	return fmt.Errorf("openai: %w", err)
}
