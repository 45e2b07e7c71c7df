package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"narrata/internal/config"
	"narrata/internal/llm"
)

func TestChatReturnsText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello","tool_calls":[]}}],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`))
	}))
	t.Cleanup(srv.Close)

	client := New(config.OpenAIConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, srv.Client())
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
	if !strings.Contains(gotPath, "/chat/completions") {
		t.Fatalf("path = %q, want it to contain /chat/completions", gotPath)
	}
}

func TestLastUserIndex(t *testing.T) {
	cases := []struct {
		name string
		msgs []llm.Message
		want int
	}{
		{"empty", nil, -1},
		{"single user", []llm.Message{{Role: "user", Content: "hi"}}, 0},
		{
			"last user wins over earlier assistant turn",
			[]llm.Message{
				{Role: "user", Content: "first"},
				{Role: "assistant", Content: "reply"},
				{Role: "user", Content: "second"},
			},
			2,
		},
		{
			"blank role counts as user",
			[]llm.Message{{Role: "system", Content: "be terse"}, {Role: "", Content: "hi"}},
			1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lastUserIndex(tc.msgs); got != tc.want {
				t.Errorf("lastUserIndex(%+v) = %d, want %d", tc.msgs, got, tc.want)
			}
		})
	}
}

func TestBuildParamsConvertsRolesAndModel(t *testing.T) {
	c := &Client{model: "gpt-test"}
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
		MaxTokens:   128,
		Temperature: 0.5,
	}

	params := c.buildParams(req)
	if string(params.Model) != "gpt-test" {
		t.Errorf("Model = %q, want %q", params.Model, "gpt-test")
	}
	if len(params.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3 (system + user + assistant)", len(params.Messages))
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 128 {
		t.Errorf("MaxCompletionTokens = %+v, want 128", params.MaxCompletionTokens)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.5 {
		t.Errorf("Temperature = %+v, want 0.5", params.Temperature)
	}
}

func TestBuildParamsAttachesImageToLastUserMessageOnly(t *testing.T) {
	c := &Client{model: "gpt-test"}
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "user", Content: "first"},
			{Role: "user", Content: "second"},
		},
		Media: []llm.MediaPart{{MIMEType: "image/png", URL: "https://example.com/cat.png"}},
	}

	params := c.buildParams(req)
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
}

func TestBuildParamsOmitsMaxTokensAndTemperatureWhenUnset(t *testing.T) {
	c := &Client{model: "gpt-test"}
	req := llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}}

	params := c.buildParams(req)
	if params.MaxCompletionTokens.Valid() {
		t.Errorf("MaxCompletionTokens should be unset, got %+v", params.MaxCompletionTokens)
	}
	if params.Temperature.Valid() {
		t.Errorf("Temperature should be unset, got %+v", params.Temperature)
	}
}

func TestPickModelFallsBackToClientDefault(t *testing.T) {
	c := &Client{model: "gpt-default"}
	if got := c.pickModel(""); got != "gpt-default" {
		t.Errorf("pickModel(\"\") = %q, want %q", got, "gpt-default")
	}
	if got := c.pickModel("  gpt-override  "); got != "gpt-override" {
		t.Errorf("pickModel with override = %q, want %q", got, "gpt-override")
	}
}

func TestClassifyHTTPErrorWrapsNonSDKError(t *testing.T) {
	base := errors.New("boom")
	err := classifyHTTPError(base)
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
	if !strings.Contains(err.Error(), "openai:") || !errors.Is(err, base) {
		t.Errorf("classifyHTTPError(%v) = %v, want wrapped with openai: prefix", base, err)
	}
}
