package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"journalsync/models"
)

// NoTranscript marks an entry whose payload carried no dialogue at all.
const NoTranscript = "No transcript found in conversation data."

var (
	roleKeys    = []string{"role", "speaker"}
	contentKeys = []string{"message", "text", "content"}
)

// wrappers maps a wrapper key to the separator between its turns.
var wrappers = []struct {
	key string
	sep string
}{
	{"messages", "\n"},
	{"transcript", "\n\n"},
}

// RenderTranscript flattens a transcript of unknown shape into
// "<Role>: <content>" lines. Strings are returned trimmed and lists of turns
// are joined by a newline, as are {"messages": [...]} wrappers. Scraped
// {"transcript": [...]} wrappers are joined by a blank line.
func RenderTranscript(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(vv)
	case []any:
		return formatTurns(parseTurns(vv), "\n")
	case map[string]any:
		for _, w := range wrappers {
			if turns, ok := vv[w.key].([]any); ok {
				return formatTurns(parseTurns(turns), w.sep)
			}
		}
		return ""
	default:
		return stringOf(vv)
	}
}

// RenderTranscriptOrPlaceholder is RenderTranscript with NoTranscript for absent input.
func RenderTranscriptOrPlaceholder(v any) string {
	if v == nil {
		return NoTranscript
	}
	if s := RenderTranscript(v); s != "" {
		return s
	}
	return NoTranscript
}

func parseTurns(items []any) []models.Turn {
	turns := make([]models.Turn, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		turns = append(turns, models.Turn{
			Role:    pickStrDefault(m, "unknown", roleKeys...),
			Content: pickStr(m, contentKeys...),
		})
	}
	return turns
}

func formatTurns(turns []models.Turn, sep string) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, capitalize(t.Role)+": "+t.Content)
	}
	return strings.TrimSpace(strings.Join(lines, sep))
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
