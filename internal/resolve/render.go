package resolve

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/narrative"
)

func renderTable(result tableResult, format narrative.TableFormat) (string, error) {
	switch format {
	case narrative.FormatMarkdown:
		return renderMarkdown(result), nil
	case narrative.FormatCSV:
		return renderCSV(result)
	case narrative.FormatJSON, "":
		return renderJSON(result)
	default:
		return "", narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonFeatureUnsupported, "unknown table format: "+string(format))
	}
}

func renderJSON(result tableResult) (string, error) {
	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, err)
	}
	return string(encoded), nil
}

func renderMarkdown(result tableResult) string {
	if len(result.Columns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString(" |\n| ")
	b.WriteString(strings.Join(repeat("---", len(result.Columns)), " | "))
	b.WriteString(" |\n")
	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = escapeMarkdownCell(cellString(row[col]))
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	return b.String()
}

func renderCSV(result tableResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(result.Columns) > 0 {
		if err := w.Write(result.Columns); err != nil {
			return "", narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, err)
		}
	}
	for _, row := range result.Rows {
		record := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			record[i] = cellString(row[col])
		}
		if err := w.Write(record); err != nil {
			return "", narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, err)
	}
	return buf.String(), nil
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func escapeMarkdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
