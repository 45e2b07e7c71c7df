// Package google adapts narrata's llm.Provider contract to the Gemini
// GenerateContent API.
package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
	"narrata/internal/observability"
)

type Client struct {
	client      *genai.Client
	model       string
	httpOptions genai.HTTPOptions
}

func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if apiKey == "" {
		return nil, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonMissingAPIKey, cfg.APIKeyEnv+" is not set")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{client: client, model: model, httpOptions: httpOpts}, nil
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) buildConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{HTTPOptions: &c.httpOptions}
}

func toContents(req llm.Request) ([]*genai.Content, string, error) {
	var system strings.Builder
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				if system.Len() > 0 {
					system.WriteString("\n")
				}
				system.WriteString(m.Content)
			}
			continue
		case "assistant":
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			parts := []*genai.Part{}
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, media := range req.Media {
				if strings.HasPrefix(media.MIMEType, "image/") && len(media.Data) > 0 {
					parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: media.Data, MIMEType: media.MIMEType}})
				}
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		}
	}
	if len(contents) == 0 {
		return nil, "", narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "no user content to send")
	}
	return contents, system.String(), nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := c.pickModel(req.Model)
	ctx, span := llm.StartRequestSpan(ctx, "Google Chat", model, len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)
	log := observability.LoggerWithTrace(ctx)

	contents, system, err := toContents(req)
	if err != nil {
		span.RecordError(err)
		return llm.Response{}, err
	}
	cfg := c.buildConfig()
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := int32(req.MaxTokens)
		cfg.MaxOutputTokens = mt
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("google_chat_error")
		return llm.Response{}, classifyError(err)
	}

	out, err := responseFromReply(resp)
	if err != nil {
		span.RecordError(err)
		return llm.Response{}, err
	}
	llm.LogRedactedResponse(ctx, out)
	llm.RecordTokenAttributes(span, out.PromptTokens, out.CompletionTokens)
	llm.RecordTokenMetrics(ctx, model, out.PromptTokens, out.CompletionTokens)
	log.Debug().Str("model", model).Dur("duration", dur).
		Int("prompt_tokens", out.PromptTokens).Int("completion_tokens", out.CompletionTokens).
		Msg("google_chat_ok")
	return out, nil
}

func (c *Client) ChatStream(ctx context.Context, req llm.Request, yield func(llm.Chunk) error) error {
	model := c.pickModel(req.Model)
	ctx, span := llm.StartRequestSpan(ctx, "Google ChatStream", model, len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)
	log := observability.LoggerWithTrace(ctx)

	contents, system, err := toContents(req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	cfg := c.buildConfig()
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	stream := c.client.Models.GenerateContentStream(ctx, model, contents, cfg)

	var promptTokens, completionTokens int
	for resp, err := range stream {
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("model", model).Msg("google_stream_error")
			return classifyError(err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			promptTokens = int(resp.UsageMetadata.PromptTokenCount)
			completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if err := yield(llm.Chunk{Text: part.Text}); err != nil {
				return err
			}
		}
	}

	llm.RecordTokenAttributes(span, promptTokens, completionTokens)
	llm.RecordTokenMetrics(ctx, model, promptTokens, completionTokens)
	return yield(llm.Chunk{IsFinal: true, FinishReason: "stop"})
}

func responseFromReply(resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Response{}, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "empty response from google provider")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Response{}, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "request blocked by google: "+string(resp.PromptFeedback.BlockReason))
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return llm.Response{}, nil
	}
	var sb strings.Builder
	var images []llm.ImagePart
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
		if part.InlineData != nil {
			images = append(images, llm.ImagePart{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data})
		}
	}
	out := llm.Response{Text: sb.String(), Images: images}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// classifyError surfaces a genai API error's HTTP status (when present) as a
// narrataerrors.HTTPError so internal/llm's retry classifier can act on it.
func classifyError(err error) error {
	var apiErr genai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		return narrataerrors.HTTPError(apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("google: %w", err)
}

func asAPIError(err error, target *genai.APIError) bool {
	for err != nil {
		if apiErr, ok := err.(genai.APIError); ok {
			*target = apiErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
