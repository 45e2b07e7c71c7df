package narrative

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
)

// Build turns a parsed narrative TOML file into the typed domain model.
// Resolution happens once, here, rather than at execution time: every
// "bots.x" / "tables.x" / "media.x" short-string reference in an act's
// input list is expanded against the file's [bots], [tables], and [media]
// blocks before the Narrative is ever handed to the executor.
func Build(nf config.NarrativeFile) (Narrative, error) {
	n := Narrative{
		Name:                  nf.Narrative.Name,
		Description:           nf.Narrative.Description,
		Template:              nf.Narrative.Template,
		SkipContentGeneration: nf.Narrative.SkipContentGeneration,
		TOC:                   nf.TOC.Order,
		Acts:                  make(map[string]ActConfig, len(nf.Acts)),
	}

	for name, raw := range nf.Acts {
		act, err := resolveAct(raw, nf)
		if err != nil {
			return n, fmt.Errorf("act %q: %w", name, err)
		}
		n.Acts[name] = act
	}

	return n, n.Validate()
}

// resolveAct handles the three shapes BurntSushi/toml hands back for an
// [acts] value: a bare string (one literal text input), an array (an
// input list where each element is either a reference or literal text),
// or a table (an input list plus optional per-act model overrides).
func resolveAct(raw any, nf config.NarrativeFile) (ActConfig, error) {
	switch v := raw.(type) {
	case string:
		input, err := resolveInputElement(v, nf)
		if err != nil {
			return ActConfig{}, err
		}
		return ActConfig{Inputs: []Input{input}}, nil

	case []any:
		inputs, err := resolveInputList(v, nf)
		if err != nil {
			return ActConfig{}, err
		}
		return ActConfig{Inputs: inputs}, nil

	case map[string]any:
		return resolveActTable(v, nf)

	default:
		return ActConfig{}, fmt.Errorf("unsupported act value type %T", raw)
	}
}

func resolveActTable(m map[string]any, nf config.NarrativeFile) (ActConfig, error) {
	var act ActConfig

	// The table form of an act names its input list "input", unlike the
	// top-level [acts.<name>] array form which has no key at all — the
	// two are visually similar but "input" is singular here.
	if rawInputs, ok := m["input"]; ok {
		list, ok := rawInputs.([]any)
		if !ok {
			return act, fmt.Errorf("input must be an array")
		}
		inputs, err := resolveInputList(list, nf)
		if err != nil {
			return act, err
		}
		act.Inputs = inputs
	}

	if v, ok := m["model"].(string); ok {
		act.Model = &v
	}
	if v, ok := toFloat(m["temperature"]); ok {
		act.Temperature = &v
	}
	if v, ok := toInt(m["max_tokens"]); ok {
		act.MaxTokens = &v
	}

	return act, nil
}

// resolveInputList expands an [acts.<name>] array: each element is either
// a string (a reference or literal text) or an inline input table fully
// describing a text/media/bot/table input without going through the
// narrative's [bots]/[tables]/[media] blocks.
func resolveInputList(raw []any, nf config.NarrativeFile) ([]Input, error) {
	inputs := make([]Input, 0, len(raw))
	for _, elem := range raw {
		var (
			input Input
			err   error
		)
		switch v := elem.(type) {
		case string:
			input, err = resolveInputElement(v, nf)
		case map[string]any:
			input, err = resolveInlineInput(v)
		default:
			err = fmt.Errorf("input list elements must be a string or table, got %T", elem)
		}
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

// resolveInlineInput decodes an ad-hoc input table written directly in the
// input list, discriminated by its "type" field, rather than a reference
// into [bots]/[tables]/[media].
func resolveInlineInput(m map[string]any) (Input, error) {
	kind, _ := m["type"].(string)
	switch kind {
	case "", "text":
		text, _ := m["text"].(string)
		return Input{Kind: InputText, Text: text}, nil

	case "image", "audio", "video", "document":
		url, _ := m["url"].(string)
		file, _ := m["file"].(string)
		b64, _ := m["base64"].(string)
		mime, _ := m["mime"].(string)
		filename, _ := m["filename"].(string)

		var source MediaSource
		switch {
		case b64 != "":
			source = MediaSource{Kind: MediaSourceBase64, Base64: b64}
		case url != "":
			source = MediaSource{Kind: MediaSourceURL, URL: url}
		case file != "":
			source = MediaSource{Kind: MediaSourceFile, Path: file}
		}
		if mime == "" {
			mime = mimeFromFilename(firstNonEmptyPath(filename, file, url))
		}

		return Input{
			Kind:          InputMedia,
			MediaCategory: MediaCategory(kind),
			MIMEType:      mime,
			Source:        source,
			Filename:      filename,
		}, nil

	case "bot":
		platform, _ := m["platform"].(string)
		command, _ := m["command"].(string)
		required, _ := m["required"].(bool)
		args, _ := m["args"].(map[string]any)
		var ttl *time.Duration
		if secs, ok := toInt(m["cache_ttl_seconds"]); ok {
			d := time.Duration(secs) * time.Second
			ttl = &d
		}
		return Input{
			Kind:          InputBot,
			Platform:      platform,
			Command:       command,
			Args:          args,
			Required:      required,
			CacheDuration: ttl,
		}, nil

	case "table":
		tableName, _ := m["table_name"].(string)
		where, _ := m["where"].(string)
		orderBy, _ := m["order_by"].(string)
		limit, _ := toInt(m["limit"])
		offset, _ := toInt(m["offset"])
		sample, _ := toInt(m["sample"])
		format, _ := m["format"].(string)

		var columns []string
		if raw, ok := m["columns"].([]any); ok {
			for _, c := range raw {
				if s, ok := c.(string); ok {
					columns = append(columns, s)
				}
			}
		}

		return Input{
			Kind:      InputTable,
			TableName: tableName,
			Columns:   columns,
			Where:     where,
			Limit:     limit,
			Offset:    offset,
			OrderBy:   orderBy,
			Format:    tableFormat(format),
			Sample:    sample,
		}, nil

	default:
		return Input{}, fmt.Errorf("unknown inline input type %q", kind)
	}
}

// resolveInputElement expands a single string: "bots.x", "tables.x", and
// "media.x" are resource references; everything else is literal text.
func resolveInputElement(s string, nf config.NarrativeFile) (Input, error) {
	prefix, name, hasRef := splitReference(s)
	if !hasRef {
		return Input{Kind: InputText, Text: s}, nil
	}

	switch prefix {
	case "bots":
		b, ok := nf.Bots[name]
		if !ok {
			return Input{}, narrataerrors.New(narrataerrors.KindNarrativeInvalid, narrataerrors.ReasonBotCommandNotConfig,
				fmt.Sprintf("bots.%s is not configured", name))
		}
		return Input{
			Kind:     InputBot,
			Platform: b.Platform,
			Command:  b.Command,
			Args:     b.Args,
			Required: true,
		}, nil

	case "tables":
		t, ok := nf.Tables[name]
		if !ok {
			return Input{}, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonTableNotFound,
				fmt.Sprintf("tables.%s is not configured", name))
		}
		return Input{
			Kind:      InputTable,
			TableName: t.TableName,
			Columns:   t.Columns,
			Where:     t.Where,
			Limit:     t.Limit,
			Offset:    t.Offset,
			OrderBy:   t.OrderBy,
			Format:    tableFormat(t.Format),
			Sample:    t.Sample,
		}, nil

	case "media":
		m, ok := nf.Media[name]
		if !ok {
			return Input{}, fmt.Errorf("media.%s is not configured", name)
		}
		return resolveMediaBlock(m), nil

	default:
		return Input{Kind: InputText, Text: s}, nil
	}
}

// splitReference recognizes the "bots."/"tables."/"media." prefixes. A
// dotted string with any other prefix (or no dot at all) is not a
// reference and is returned as hasRef=false so callers fall back to
// treating it as literal text.
func splitReference(s string) (prefix, name string, hasRef bool) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return "", "", false
	}
	p, n := s[:i], s[i+1:]
	switch p {
	case "bots", "tables", "media":
		return p, n, n != ""
	default:
		return "", "", false
	}
}

func tableFormat(s string) TableFormat {
	switch TableFormat(s) {
	case FormatMarkdown, FormatCSV:
		return TableFormat(s)
	default:
		return FormatJSON
	}
}

func resolveMediaBlock(m config.MediaBlock) Input {
	mime := m.MIME
	if mime == "" {
		mime = mimeFromFilename(firstNonEmptyPath(m.Filename, m.File, m.URL))
	}
	category := mediaCategoryFromMIME(mime)

	var source MediaSource
	switch {
	case m.Base64 != "":
		source = MediaSource{Kind: MediaSourceBase64, Base64: m.Base64}
	case m.URL != "":
		source = MediaSource{Kind: MediaSourceURL, URL: m.URL}
	case m.File != "":
		source = MediaSource{Kind: MediaSourceFile, Path: m.File}
	}

	return Input{
		Kind:          InputMedia,
		MediaCategory: category,
		MIMEType:      mime,
		Source:        source,
		Filename:      m.Filename,
	}
}

func mediaCategoryFromMIME(mime string) MediaCategory {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	default:
		return MediaDocument
	}
}

func firstNonEmptyPath(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// mimeFromFilename infers a MIME type from a file extension, used when a
// media input's [media.<name>] block (or inline table) omits "mime".
// MIME and category are both inferred from extension when absent.
var extToMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
}

func mimeFromFilename(name string) string {
	return extToMIME[strings.ToLower(filepath.Ext(name))]
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
