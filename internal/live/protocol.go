// Package live dials the Gemini Live API over WebSocket and adapts the
// setup/content/goAway frame exchange to narrata's llm.LiveSession
// contract. One connection is opened per call; nothing here is reused
// across requests.
package live

// setupMessage is the first frame sent after the socket opens.
type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens    *int     `json:"maxOutputTokens,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

// part is the text-or-inline-data union the Live API uses for every piece
// of content. A frame never sets both fields on the same part.
type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// clientContentMessage carries one conversation turn to the model.
type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []turn `json:"turns"`
	TurnComplete bool   `json:"turnComplete"`
}

type turn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

// serverMessage is a single frame received from the server. Exactly one
// of the pointer fields is set per frame, plus optional usage metadata.
type serverMessage struct {
	SetupComplete *setupComplete `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type setupComplete struct{}

type serverContent struct {
	ModelTurn    modelTurn `json:"modelTurn"`
	TurnComplete bool      `json:"turnComplete"`
	Interrupted  *bool     `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type goAway struct {
	Reason string `json:"reason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (m *serverMessage) isSetupComplete() bool { return m.SetupComplete != nil }
func (m *serverMessage) isGoAway() bool        { return m.GoAway != nil }

func (m *serverMessage) isTurnComplete() bool {
	return m.ServerContent != nil && m.ServerContent.TurnComplete
}

// extractText concatenates the text parts of the current model turn, if
// any. Inline-data parts (audio/image) are not collected here — narrata's
// Live integration is text-only.
func (m *serverMessage) extractText() string {
	if m.ServerContent == nil {
		return ""
	}
	var out string
	for _, p := range m.ServerContent.ModelTurn.Parts {
		out += p.Text
	}
	return out
}

func (m *serverMessage) goAwayReason() string {
	if m.GoAway == nil {
		return ""
	}
	if m.GoAway.Reason == "" {
		return "unknown"
	}
	return m.GoAway.Reason
}

func textPart(text string) part { return part{Text: text} }
