package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
)

const defaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Dialer opens one Gemini Live WebSocket session per call — there is no
// persistent connection to reuse, matching the "one session per request"
// shape of a narrative act's Live call. It implements llm.LiveSession.
type Dialer struct {
	endpoint string
	apiKey   string
	limiter  *messageLimiter

	// dial is overridden in tests to point at an in-process server.
	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

// NewDialer builds a Dialer from Google provider config. messagesPerMinute
// <= 0 disables the per-session send-rate limit.
func NewDialer(cfg config.GoogleConfig, messagesPerMinute int) (*Dialer, error) {
	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if apiKey == "" {
		return nil, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonMissingAPIKey, cfg.APIKeyEnv+" is not set")
	}
	endpoint := strings.TrimSpace(cfg.LiveBaseURL)
	if endpoint == "" {
		endpoint = defaultLiveEndpoint
	}
	d := &Dialer{endpoint: endpoint, apiKey: apiKey, limiter: newMessageLimiter(messagesPerMinute)}
	d.dial = d.defaultDial
	return d, nil
}

func (d *Dialer) defaultDial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	return conn, err
}

func (d *Dialer) dialURL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("live: invalid endpoint %q: %w", d.endpoint, err)
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials the socket and runs the setup handshake for one call. The
// returned connection is only ever used for a single send/collect cycle.
func (d *Dialer) connect(ctx context.Context, model string, req llm.Request) (*websocket.Conn, error) {
	rawURL, err := d.dialURL()
	if err != nil {
		return nil, err
	}
	conn, err := d.dial(ctx, rawURL)
	if err != nil {
		return nil, narrataerrors.Wrap(narrataerrors.KindLLMProvider, narrataerrors.ReasonWebSocketHandshake, err)
	}
	if err := d.setupHandshake(conn, buildSetupConfig(model, req)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) setupHandshake(conn *websocket.Conn, cfg setupConfig) error {
	if err := conn.WriteJSON(setupMessage{Setup: cfg}); err != nil {
		return narrataerrors.Wrap(narrataerrors.KindLLMProvider, narrataerrors.ReasonWebSocketHandshake, err)
	}
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonWebSocketHandshake, "connection closed before setup complete")
		}
		if msg.isSetupComplete() {
			return nil
		}
		if msg.isGoAway() {
			return narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonServerDisconnect, "server sent goAway during setup: "+msg.goAwayReason())
		}
	}
}

// SendAndCollect opens a session, sends req as one completed turn, and
// blocks until turnComplete, returning the concatenated response text.
func (d *Dialer) SendAndCollect(ctx context.Context, model string, req llm.Request) (llm.Response, error) {
	if err := d.limiter.acquire(ctx); err != nil {
		return llm.Response{}, err
	}
	conn, err := d.connect(ctx, model, req)
	if err != nil {
		return llm.Response{}, err
	}
	defer conn.Close()

	if err := sendTurn(conn, req); err != nil {
		return llm.Response{}, err
	}

	var (
		text  strings.Builder
		usage usageMetadata
	)
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if isCloseError(err) {
				break
			}
			return llm.Response{}, narrataerrors.Wrap(narrataerrors.KindLLMProvider, narrataerrors.ReasonStreamInterrupted, err)
		}
		if msg.isGoAway() {
			return llm.Response{}, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonServerDisconnect, "server disconnecting: "+msg.goAwayReason())
		}
		text.WriteString(msg.extractText())
		if msg.UsageMetadata != nil {
			usage = *msg.UsageMetadata
		}
		if msg.isTurnComplete() {
			break
		}
	}
	return llm.Response{
		Text:             text.String(),
		PromptTokens:     usage.PromptTokenCount,
		CompletionTokens: usage.CandidatesTokenCount,
	}, nil
}

// SendAndStream opens a session, sends req as one completed turn, and
// yields one Chunk per server frame that carries text. The chunk for the
// turnComplete frame (with whatever text that frame carries) is marked
// IsFinal; a graceful close before turnComplete yields an empty IsFinal
// chunk.
func (d *Dialer) SendAndStream(ctx context.Context, model string, req llm.Request, yield func(llm.Chunk) error) error {
	if err := d.limiter.acquire(ctx); err != nil {
		return err
	}
	conn, err := d.connect(ctx, model, req)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := sendTurn(conn, req); err != nil {
		return err
	}

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if isCloseError(err) {
				return yield(llm.Chunk{IsFinal: true, FinishReason: "stop"})
			}
			return narrataerrors.Wrap(narrataerrors.KindLLMProvider, narrataerrors.ReasonStreamInterrupted, err)
		}
		if msg.isGoAway() {
			return narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonServerDisconnect, "server disconnecting: "+msg.goAwayReason())
		}
		isFinal := msg.isTurnComplete()
		text := msg.extractText()
		if text == "" && !isFinal {
			continue
		}
		chunk := llm.Chunk{Text: text, IsFinal: isFinal}
		if isFinal {
			chunk.FinishReason = "stop"
		}
		if err := yield(chunk); err != nil {
			return err
		}
		if isFinal {
			return nil
		}
	}
}

func sendTurn(conn *websocket.Conn, req llm.Request) error {
	msg := clientContentMessage{ClientContent: clientContent{
		Turns:        []turn{{Role: "user", Parts: userParts(req)}},
		TurnComplete: true,
	}}
	if err := conn.WriteJSON(msg); err != nil {
		return narrataerrors.Wrap(narrataerrors.KindLLMProvider, narrataerrors.ReasonTransport, err)
	}
	return nil
}

func isCloseError(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}

// userParts combines every non-system message into one text part (Live
// takes a single turn per call, not a running transcript) plus one
// inline-data part per media attachment.
func userParts(req llm.Request) []part {
	var parts []part
	if text := combinedText(req, false); text != "" {
		parts = append(parts, textPart(text))
	}
	for _, m := range req.Media {
		if len(m.Data) == 0 {
			continue
		}
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: m.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(m.Data),
		}})
	}
	return parts
}

func combinedText(req llm.Request, system bool) string {
	var lines []string
	for _, m := range req.Messages {
		isSystem := strings.EqualFold(m.Role, "system")
		if isSystem != system {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		lines = append(lines, m.Content)
	}
	return strings.Join(lines, "\n\n")
}

func buildSetupConfig(model string, req llm.Request) setupConfig {
	cfg := setupConfig{Model: model}

	var gen generationConfig
	hasGen := false
	if req.Temperature != 0 {
		t := req.Temperature
		gen.Temperature = &t
		hasGen = true
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		gen.MaxOutputTokens = &n
		hasGen = true
	}
	if hasGen {
		cfg.GenerationConfig = &gen
	}

	if sys := combinedText(req, true); sys != "" {
		cfg.SystemInstruction = &systemInstruction{Parts: []part{textPart(sys)}}
	}
	return cfg
}
