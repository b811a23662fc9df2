package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
)

// MARKDOWN LAYOUT:
//
//	# Snippets
//
//	<!-- snippet {"label":"Notes","markdown":true} -->
//	...raw markdown source...
//	<!-- /snippet -->
//
//	<!-- snippet {"label":"shell"} -->
//	```
//	plain content, fenced so it renders verbatim
//	```
//	<!-- /snippet -->
//
// The markers are HTML comments, so the document renders cleanly while the
// importer can still find exact snippet boundaries. Content lines that look
// like a marker are backslash-escaped the same way as the plain-text
// delimiter. Attribute JSON is marshalled with HTML escaping on, so "-->"
// inside a label cannot close the comment early.

const (
	markdownTitle = "# Snippets"
	openPrefix    = "<!-- snippet "
	openSuffix    = " -->"
	closeMarker   = "<!-- /snippet -->"
)

var (
	needsMarkerEscape = regexp.MustCompile(`^\\*<!-- (/snippet -->$|snippet )`)
	escapedMarker     = regexp.MustCompile(`^\\+<!-- (/snippet -->$|snippet )`)
	backtickRun       = regexp.MustCompile("`+")
	openFence         = regexp.MustCompile("^(`{3,})$")
)

var markdownParser = goldmark.New().Parser()

type markdownAttrs struct {
	Label    string   `json:"label,omitempty"`
	Markdown bool     `json:"markdown,omitempty"`
	Template bool     `json:"template,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func encodeMarkdown(buf *bytes.Buffer, snippets []model.Snippet, meta Meta) error {
	buf.WriteString(markdownTitle)
	buf.WriteString("\n")

	for _, s := range snippets {
		attrs, err := json.Marshal(markdownAttrs{
			Label:    s.Label,
			Markdown: s.IsMarkdown,
			Template: s.IsTemplate,
			Category: meta.category(s),
			Tags:     meta.tags(s),
		})
		if err != nil {
			return err
		}

		buf.WriteString("\n")
		buf.WriteString(openPrefix)
		buf.Write(attrs)
		buf.WriteString(openSuffix)
		buf.WriteString("\n")

		if s.IsMarkdown {
			writeEscapedLines(buf, s.Content, needsMarkerEscape)
			buf.WriteString("\n")
		} else {
			fence := fenceFor(s.Content)
			buf.WriteString(fence)
			buf.WriteString("\n")
			writeEscapedLines(buf, s.Content, needsMarkerEscape)
			buf.WriteString("\n")
			buf.WriteString(fence)
			buf.WriteString("\n")
		}
		buf.WriteString(closeMarker)
		buf.WriteString("\n")
	}
	return nil
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest := 0
	for _, run := range backtickRun.FindAllString(content, -1) {
		longest = max(longest, len(run))
	}
	return strings.Repeat("`", max(3, longest+1))
}

func decodeMarkdown(doc []byte) ([]Proposed, error) {
	lines := strings.Split(string(doc), "\n")

	hasMarkers := false
	for _, line := range lines {
		if isOpenMarker(line) {
			hasMarkers = true
			break
		}
	}
	if !hasMarkers {
		if strings.TrimSpace(string(doc)) == markdownTitle {
			return nil, nil
		}
		return splitMarkdownSections(doc), nil
	}

	var out []Proposed
	for i := 0; i < len(lines); i++ {
		if !isOpenMarker(lines[i]) {
			continue
		}

		raw := strings.TrimSuffix(strings.TrimPrefix(lines[i], openPrefix), openSuffix)
		var attrs markdownAttrs
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, apperror.ValidationFailed("document",
				fmt.Sprintf("line %d: malformed snippet marker: %v", i+1, err))
		}

		end := i + 1
		for end < len(lines) && lines[end] != closeMarker {
			end++
		}
		if end == len(lines) {
			return nil, apperror.ValidationFailed("document",
				fmt.Sprintf("line %d: snippet marker is never closed", i+1))
		}

		body := lines[i+1 : end]
		if !attrs.Markdown {
			body = stripFence(body)
		}

		out = append(out, Proposed{
			Label:        attrs.Label,
			Content:      joinUnescaped(body, escapedMarker),
			CategoryName: attrs.Category,
			TagLabels:    attrs.Tags,
			IsMarkdown:   attrs.Markdown,
			IsTemplate:   attrs.Template,
		})
		i = end
	}
	return out, nil
}

func isOpenMarker(line string) bool {
	return strings.HasPrefix(line, openPrefix) && strings.HasSuffix(line, openSuffix)
}

// stripFence removes the opening and closing fence lines written around
// plain content. A body that was edited into some other shape is kept as is.
func stripFence(body []string) []string {
	if len(body) < 2 {
		return body
	}
	m := openFence.FindStringSubmatch(body[0])
	if m == nil || body[len(body)-1] != m[1] {
		return body
	}
	return body[1 : len(body)-1]
}

// splitMarkdownSections imports a Markdown file we did not write: every
// level 1 or 2 heading starts a new snippet holding the raw source up to the
// next such heading. Text before the first heading becomes its own snippet.
func splitMarkdownSections(doc []byte) []Proposed {
	root := markdownParser.Parse(text.NewReader(doc))

	type cut struct {
		offset int
		label  string
	}
	var cuts []cut
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > 2 || h.Lines().Len() == 0 {
			continue
		}
		start := h.Lines().At(0).Start
		lineStart := bytes.LastIndexByte(doc[:start], '\n') + 1
		cuts = append(cuts, cut{offset: lineStart, label: inlineText(h, doc)})
	}

	var out []Proposed
	add := func(label string, section []byte) {
		content := strings.TrimRight(string(section), "\r\n")
		if strings.TrimSpace(content) == "" {
			return
		}
		out = append(out, Proposed{Label: label, Content: content, IsMarkdown: true})
	}

	if len(cuts) == 0 {
		add("", doc)
		return out
	}
	add("", doc[:cuts[0].offset])
	for i, c := range cuts {
		end := len(doc)
		if i+1 < len(cuts) {
			end = cuts[i+1].offset
		}
		add(c.label, doc[c.offset:end])
	}
	return out
}

// inlineText concatenates the text leaves under n.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
