// Package errors implements narrata's error taxonomy: a small set of
// orthogonal kinds that every subsystem reports through, so callers can
// discriminate on Kind without string-matching messages.
package errors

import (
	"fmt"
	"runtime"
)

// Kind is a coarse classification of what went wrong. Subsystems attach a
// Kind to every error they originate; wrapped errors from lower layers keep
// their own Kind rather than being recategorized by the wrapper.
type Kind string

const (
	KindConfigurationInvalid Kind = "configuration_invalid"
	KindNarrativeInvalid     Kind = "narrative_invalid"
	KindInputResolution      Kind = "input_resolution"
	KindLLMProvider          Kind = "llm_provider"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindStorageFailure       Kind = "storage_failure"
	KindContentGeneration    Kind = "content_generation_failed"
	KindProcessor            Kind = "processor_error"
)

// Sub-reasons, grouped loosely by Kind. These are carried in the Reason
// field rather than as distinct types so call sites can switch on a plain
// string constant without an import cycle back into this package's Kind
// users.
const (
	ReasonEmptyToc              = "empty_toc"
	ReasonMissingAct            = "missing_act"
	ReasonEmptyPrompt           = "empty_prompt"
	ReasonMissingTemplate       = "missing_template"
	ReasonBotCommandNotConfig = "bot_command_not_configured"
	ReasonBotCommandFailed    = "bot_command_failed"
	ReasonMissingAPIKey       = "missing_api_key"
	ReasonTransport           = "transport"
	ReasonServerDisconnect    = "server_disconnect"
	ReasonWebSocketHandshake  = "websocket_handshake"
	ReasonStreamInterrupted   = "stream_interrupted"
	ReasonFeatureUnsupported  = "feature_unsupported"
	ReasonConnection          = "connection"
	ReasonQuery               = "query"
	ReasonMigration           = "migration"
	ReasonNotFound            = "not_found"
	ReasonTableNotFound       = "table_not_found"
	ReasonSchemaInference     = "schema_inference"
	ReasonInvalidQuery        = "invalid_query"
	ReasonRequestsPerDayExceeded = "requests_per_day_exceeded"
)

// Error is the concrete error type produced by narrata. HTTPStatus is set
// only for KindLLMProvider errors originating from an HTTP response.
type Error struct {
	Kind       Kind
	Reason     string
	Message    string
	HTTPStatus int
	Err        error
	provenance string
}

// debugBuild toggles provenance capture. Left as a package variable (rather
// than a build tag) so tests can flip it without a second build.
var debugBuild = true

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Provenance returns the source file:line the error was created at, or
// empty string when provenance capture is disabled.
func (e *Error) Provenance() string { return e.provenance }

func newErr(kind Kind, reason, message string, err error) *Error {
	e := &Error{Kind: kind, Reason: reason, Message: message, Err: err}
	if debugBuild {
		if _, file, line, ok := runtime.Caller(2); ok {
			e.provenance = fmt.Sprintf("%s:%d", file, line)
		}
	}
	return e
}

// New builds a tagged error with no wrapped cause.
func New(kind Kind, reason, message string) *Error {
	return newErr(kind, reason, message, nil)
}

// Wrap tags an existing error with a Kind/Reason, preserving it as the
// unwrap target.
func Wrap(kind Kind, reason string, err error) *Error {
	if err == nil {
		return nil
	}
	return newErr(kind, reason, "", err)
}

// HTTPError builds a KindLLMProvider error carrying the offending status
// code, used by the retry classifier in internal/llm/retry.go.
func HTTPError(status int, message string) *Error {
	e := newErr(KindLLMProvider, fmt.Sprintf("http_%d", status), message, nil)
	e.HTTPStatus = status
	return e
}

// Is reports whether err is a narrata *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As is a thin re-export of errors.As typed for *Error, saved to avoid a
// stdlib import collision at call sites that alias this package as
// "errors".
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
