package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
)

func minimalUsage() sdk.Usage {
	return sdk.Usage{
		InputTokens:   3,
		OutputTokens:  5,
		ServiceTier:   sdk.UsageServiceTierStandard,
		ServerToolUse: sdk.ServerToolUsage{WebSearchRequests: 0},
	}
}

func TestChatReturnsText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         "msg_1",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonEndTurn,
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hello"}},
			Usage:      minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, srv.Client())
	resp, err := client.Chat(context.Background(), llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("Text = %q, want %q", resp.Text, "hello")
	}
	if resp.PromptTokens != 3 || resp.CompletionTokens != 5 {
		t.Fatalf("token counts = %d/%d, want 3/5", resp.PromptTokens, resp.CompletionTokens)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("path = %q, want /v1/messages", gotPath)
	}
}

func TestBuildParamsConvertsRoles(t *testing.T) {
	c := &Client{model: "claude-test"}
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
		MaxTokens: 256,
	}

	params, err := c.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams returned error: %v", err)
	}
	if len(params.System) != 1 || params.System[0].Text != "be terse" {
		t.Errorf("System = %+v, want one block with %q", params.System, "be terse")
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 (user + assistant)", len(params.Messages))
	}
	if params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", params.MaxTokens)
	}
	if string(params.Model) != "claude-test" {
		t.Errorf("Model = %q, want %q", params.Model, "claude-test")
	}
}

func TestBuildParamsAppliesDefaultMaxTokens(t *testing.T) {
	c := &Client{model: "claude-test"}
	req := llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}}

	params, err := c.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams returned error: %v", err)
	}
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", params.MaxTokens, defaultMaxTokens)
	}
}

func TestBuildParamsRejectsEmptyUserContent(t *testing.T) {
	c := &Client{model: "claude-test"}
	req := llm.Request{Messages: []llm.Message{{Role: "system", Content: "be terse"}}}

	_, err := c.buildParams(req)
	if err == nil {
		t.Fatal("expected error for request with no user content")
	}
	if !narrataerrors.Is(err, narrataerrors.KindLLMProvider) {
		t.Errorf("expected a KindLLMProvider error, got %v", err)
	}
}

func TestPickModelFallsBackToClientDefault(t *testing.T) {
	c := &Client{model: "claude-default"}
	if got := c.pickModel(""); got != "claude-default" {
		t.Errorf("pickModel(\"\") = %q, want %q", got, "claude-default")
	}
	if got := c.pickModel("  claude-override  "); got != "claude-override" {
		t.Errorf("pickModel with override = %q, want %q", got, "claude-override")
	}
}

func TestClassifyHTTPErrorWrapsNonSDKError(t *testing.T) {
	base := errors.New("boom")
	err := classifyHTTPError(base)
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
	if !strings.Contains(err.Error(), "anthropic:") || !errors.Is(err, base) {
		t.Errorf("classifyHTTPError(%v) = %v, want wrapped with anthropic: prefix", base, err)
	}
}
