// Package narrative holds the core data model: narratives, act
// configurations, inputs, and the execution records produced by running
// one. Building a Narrative from a parsed TOML file resolves every
// short-string resource reference ("bots.x", "tables.x", "media.x") once,
// up front — internal/executor never re-resolves a reference at run time.
package narrative

import "time"

// InputKind discriminates the tagged-sum Input type.
type InputKind string

const (
	InputText  InputKind = "text"
	InputMedia InputKind = "media"
	InputBot   InputKind = "bot"
	InputTable InputKind = "table"
)

// MediaCategory is the act-level media type.
type MediaCategory string

const (
	MediaImage    MediaCategory = "image"
	MediaAudio    MediaCategory = "audio"
	MediaVideo    MediaCategory = "video"
	MediaDocument MediaCategory = "document"
)

// MediaSourceKind discriminates how a media input's bytes are reached.
type MediaSourceKind string

const (
	MediaSourceURL    MediaSourceKind = "url"
	MediaSourceBase64 MediaSourceKind = "base64"
	MediaSourceFile   MediaSourceKind = "file"
	MediaSourceBuffer MediaSourceKind = "buffer"
)

// MediaSource is a union over the ways a media input names its payload.
// Path holds a local filesystem path for MediaSourceFile; internal/resolve
// is what actually reads bytes off of URL/Path/Base64 at resolution time.
type MediaSource struct {
	Kind   MediaSourceKind
	URL    string
	Path   string
	Base64 string
	Buffer []byte
}

// TableFormat is the requested rendering for a table reference input.
type TableFormat string

const (
	FormatJSON     TableFormat = "json"
	FormatMarkdown TableFormat = "markdown"
	FormatCSV      TableFormat = "csv"
)

// Input is one element of an act's input list. Kind determines which of
// the kind-specific fields are populated — a Role-style discriminated
// struct (a Kind field plus fields only some kinds use) rather than a Go
// sum type, since the standard library and this codebase's conventions
// have no generic sum-type equivalent.
type Input struct {
	Kind InputKind

	// InputText
	Text string

	// InputMedia
	MediaCategory MediaCategory
	MIMEType      string
	Source        MediaSource
	Filename      string

	// InputBot
	Platform      string
	Command       string
	Args          map[string]any
	Required      bool
	CacheDuration *time.Duration

	// InputTable
	TableName string
	Columns   []string
	Where     string
	Limit     int
	Offset    int
	OrderBy   string
	Format    TableFormat
	Sample    int
}

// ActConfig is one act: its input list plus optional per-act dispatch
// overrides.
type ActConfig struct {
	Inputs      []Input
	Model       *string
	Temperature *float64
	MaxTokens   *int
}

// Narrative is the full data model for one narrative definition: a table
// of contents (act name order) plus a map from act name to configuration.
type Narrative struct {
	Name                  string
	Description           string
	Template              string
	SkipContentGeneration bool
	TOC                   []string
	Acts                  map[string]ActConfig
}
