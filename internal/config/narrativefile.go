package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// NarrativeFile is the raw decode target for a narrative TOML file. Acts
// is left as `any` per key because an act value may be a bare string, an
// array of inputs, or a table with model overrides —
// BurntSushi/toml happily decodes any of those shapes into `any`
// (string / []any / map[string]any respectively). internal/narrative
// is responsible for turning this raw shape into the typed domain model.
type NarrativeFile struct {
	Narrative NarrativeBlock        `toml:"narrative"`
	TOC       TOCBlock              `toml:"toc"`
	Acts      map[string]any        `toml:"acts"`
	Bots      map[string]BotBlock   `toml:"bots"`
	Tables    map[string]TableBlock `toml:"tables"`
	Media     map[string]MediaBlock `toml:"media"`
}

type NarrativeBlock struct {
	Name                  string `toml:"name"`
	Description           string `toml:"description"`
	Template              string `toml:"template"`
	SkipContentGeneration bool   `toml:"skip_content_generation"`
}

type TOCBlock struct {
	Order []string `toml:"order"`
}

// BotBlock holds a platform/command pair plus whatever caller-defined
// arguments were flattened alongside them; Args captures everything the
// typed fields don't.
type BotBlock struct {
	Platform string         `toml:"platform"`
	Command  string         `toml:"command"`
	Args     map[string]any `toml:"-"`
}

// UnmarshalTOML implements toml.Unmarshaler so BotBlock can separate its
// two named fields from the arbitrary flattened arguments that accompany
// them in the same table.
func (b *BotBlock) UnmarshalTOML(data any) error {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("bot block: expected table, got %T", data)
	}
	b.Args = map[string]any{}
	for k, v := range m {
		switch k {
		case "platform":
			if s, ok := v.(string); ok {
				b.Platform = s
			}
		case "command":
			if s, ok := v.(string); ok {
				b.Command = s
			}
		default:
			b.Args[k] = v
		}
	}
	return nil
}

type TableBlock struct {
	TableName string   `toml:"table_name"`
	Columns   []string `toml:"columns"`
	Where     string   `toml:"where"`
	Limit     int      `toml:"limit"`
	Offset    int      `toml:"offset"`
	OrderBy   string   `toml:"order_by"`
	Format    string   `toml:"format"`
	Sample    int      `toml:"sample"`
}

type MediaBlock struct {
	URL      string `toml:"url"`
	File     string `toml:"file"`
	Base64   string `toml:"base64"`
	MIME     string `toml:"mime"`
	Filename string `toml:"filename"`
}

// LoadNarrativeFile decodes a narrative TOML file from disk.
func LoadNarrativeFile(path string) (NarrativeFile, error) {
	var nf NarrativeFile
	if _, err := os.Stat(path); err != nil {
		return nf, fmt.Errorf("narrative file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &nf); err != nil {
		return nf, fmt.Errorf("decode narrative file %s: %w", path, err)
	}
	return nf, nil
}

// DecodeNarrativeFile decodes a narrative TOML document already in memory
// (used by tests and by callers that fetch narrative files from storage
// rather than disk).
func DecodeNarrativeFile(data string) (NarrativeFile, error) {
	var nf NarrativeFile
	if _, err := toml.Decode(data, &nf); err != nil {
		return nf, fmt.Errorf("decode narrative document: %w", err)
	}
	return nf, nil
}
