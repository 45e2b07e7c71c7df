// Package resolve turns one act input into the text or media the dispatcher
// actually sends: a literal passthrough for text/media, a cached platform
// call for a bot command, or a sanitized SQL query rendered as json,
// markdown, or csv for a table reference. Resolution happens once per act
// run, right before dispatch — narrative.Narrative resolves resource
// references ("bots.x", "tables.x", "media.x") at build time, long before
// any of this runs.
package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
	"narrata/internal/narrative"
	"narrata/internal/observability"
)

// PlatformExecutor runs one bot command against a target platform and
// returns its raw JSON result. Declared here, not imported from a platform
// package, so this package stays agnostic of how platforms are registered —
// the same consumer-defined-interface shape internal/llm uses for its
// RateLimiter and LiveSession dependencies.
type PlatformExecutor interface {
	Execute(ctx context.Context, platform, command string, args map[string]any) (json.RawMessage, error)
}

// TableQuerier is the minimal querying surface a table-reference input
// needs. *storage.Store satisfies this directly.
type TableQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Resolved is what resolving one input produces: either text to fold into
// the act's prompt, or a media attachment to pass alongside it.
type Resolved struct {
	Text  string
	Media *llm.MediaPart
}

// Resolver resolves every input kind an act can carry. A nil Platform makes
// a required bot input fail and an optional one resolve to the synthetic
// failure text; a nil Table makes every table input fail with
// table_not_found. Neither panics.
type Resolver struct {
	Platform PlatformExecutor
	Table    TableQuerier
	HTTP     *http.Client

	// DefaultBotCacheTTL applies to a bot-command input that doesn't set
	// its own CacheDuration. Zero disables caching by default.
	DefaultBotCacheTTL time.Duration

	bots *botCache
}

// New builds a Resolver. httpClient may be nil, in which case media URL
// fetches use observability.NewHTTPClient(nil).
func New(platform PlatformExecutor, table TableQuerier, httpClient *http.Client, defaultBotCacheTTL time.Duration) *Resolver {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(nil)
	}
	return &Resolver{
		Platform:           platform,
		Table:              table,
		HTTP:               httpClient,
		DefaultBotCacheTTL: defaultBotCacheTTL,
		bots:               newBotCache(),
	}
}

// Resolve dispatches on input.Kind and produces the resolved content for
// one act input.
func (r *Resolver) Resolve(ctx context.Context, input narrative.Input) (Resolved, error) {
	switch input.Kind {
	case narrative.InputText:
		return Resolved{Text: input.Text}, nil
	case narrative.InputMedia:
		return r.resolveMedia(ctx, input)
	case narrative.InputBot:
		return r.resolveBot(ctx, input)
	case narrative.InputTable:
		return r.resolveTable(ctx, input)
	default:
		return Resolved{}, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonFeatureUnsupported, "unknown input kind: "+string(input.Kind))
	}
}
