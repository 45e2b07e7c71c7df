package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/narrative"
	"narrata/internal/observability"
)

// resolveBot executes a bot-command input through the platform registry,
// caching the pretty-printed result for the input's cache duration (or the
// resolver's default). A failed optional input resolves to a synthetic
// "[Bot command 'X' failed: ...]" text input so the act still sees
// something and the narrative continues; a failed required one returns
// an error and aborts the run.
func (r *Resolver) resolveBot(ctx context.Context, input narrative.Input) (Resolved, error) {
	if r.Platform == nil {
		err := narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonBotCommandNotConfig, "no platform registry configured for "+input.Platform+"."+input.Command)
		if input.Required {
			return Resolved{}, err
		}
		return r.botFailureText(ctx, input, err), nil
	}

	ttl := r.DefaultBotCacheTTL
	if input.CacheDuration != nil {
		ttl = *input.CacheDuration
	}
	key := cacheKey(input.Platform, input.Command, input.Args)
	if ttl > 0 {
		if cached, ok := r.bots.get(key); ok {
			return Resolved{Text: cached}, nil
		}
	}

	raw, err := r.Platform.Execute(ctx, input.Platform, input.Command, input.Args)
	if err != nil {
		if input.Required {
			return Resolved{}, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonBotCommandFailed, err)
		}
		return r.botFailureText(ctx, input, err), nil
	}

	pretty := prettyJSON(raw)
	if ttl > 0 {
		r.bots.set(key, pretty, ttl)
	}
	return Resolved{Text: pretty}, nil
}

func (r *Resolver) botFailureText(ctx context.Context, input narrative.Input, err error) Resolved {
	observability.LoggerWithTrace(ctx).Warn().Err(err).
		Str("platform", input.Platform).Str("command", input.Command).
		Msg("optional bot command failed, substituting synthetic text")
	return Resolved{Text: fmt.Sprintf("[Bot command '%s' failed: %s]", input.Command, err)}
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
