package codec

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/sakif/snippet-organizer/internal/model"
)

// Delimiter ends every record in a plain-text export.
const Delimiter = "---8<---"

// Lines that would read as a delimiter, or as an already escaped one, get one
// more leading backslash on the way out and lose one on the way in.
var (
	needsDelimiterEscape = regexp.MustCompile(`^\\*---8<---$`)
	escapedDelimiter     = regexp.MustCompile(`^\\+---8<---$`)
)

func encodeText(buf *bytes.Buffer, snippets []model.Snippet) {
	for _, s := range snippets {
		writeEscapedLines(buf, s.Content, needsDelimiterEscape)
		buf.WriteByte('\n')
		buf.WriteString(Delimiter)
		buf.WriteByte('\n')
	}
}

// decodeText reads our delimited format. A document without any delimiter
// line is treated as one snippet per non-blank line, trimmed, which is how
// plain note files are usually laid out.
func decodeText(doc string) []Proposed {
	lines := strings.Split(doc, "\n")

	if !containsLine(lines, Delimiter) {
		var out []Proposed
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				out = append(out, Proposed{Content: strings.TrimSpace(line)})
			}
		}
		return out
	}

	var out []Proposed
	var record []string
	for _, line := range lines {
		if line == Delimiter {
			out = append(out, Proposed{Content: joinUnescaped(record, escapedDelimiter)})
			record = record[:0]
			continue
		}
		record = append(record, line)
	}

	// Split leaves one empty element after the final newline; anything more
	// is trailing text someone appended without a delimiter.
	if tail := strings.Join(record, "\n"); strings.TrimSpace(tail) != "" {
		out = append(out, Proposed{Content: joinUnescaped(record, escapedDelimiter)})
	}
	return out
}

// writeEscapedLines writes content, adding a backslash to every line matched
// by pattern.
func writeEscapedLines(buf *bytes.Buffer, content string, pattern *regexp.Regexp) {
	for i, line := range strings.Split(content, "\n") {
		if i > 0 {
			buf.WriteByte('\n')
		}
		if pattern.MatchString(line) {
			buf.WriteByte('\\')
		}
		buf.WriteString(line)
	}
}

// joinUnescaped reverses writeEscapedLines.
func joinUnescaped(lines []string, escaped *regexp.Regexp) string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if escaped.MatchString(line) {
			line = line[1:]
		}
		out[i] = line
	}
	return strings.Join(out, "\n")
}

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}
