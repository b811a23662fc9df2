package codec

import (
	"bytes"
	"errors"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
)

// HTML LAYOUT:
//
//	<article class="snippet" data-label="…" data-markdown="true" data-tags="a,b">
//	<h2>label</h2>
//	<pre class="content">
//	…escaped content…</pre>
//	<div class="rendered">…sanitized preview…</div>
//	</article>
//
// The <pre> holds the exact content: the newline right after the start tag
// is ours (browsers drop it), and carriage returns are written as &#13; so
// newline normalization in HTML parsers cannot touch them. Markdown snippets
// also get a rendered preview for people opening the file in a browser; the
// importer ignores it.
//
// Import uses the tokenizer rather than the tree parser: the tree builder
// rewrites content (it drops the first newline in <pre> on its own and
// reparents misnested tags), the tokenizer only splits.

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Snippets</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; }
article.snippet { border: 1px solid #ddd; border-radius: 6px; padding: 0.5rem 1rem; margin-bottom: 1rem; }
pre.content { white-space: pre-wrap; background: #f6f8fa; padding: 0.75rem; }
.meta { color: #666; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>Snippets</h1>
`

const htmlFoot = "</body>\n</html>\n"

var (
	markdownRenderer = goldmark.New()
	previewPolicy    = bluemonday.UGCPolicy()
)

func encodeHTML(buf *bytes.Buffer, snippets []model.Snippet, meta Meta) error {
	buf.WriteString(htmlHead)

	for _, s := range snippets {
		category := meta.category(s)
		tags := meta.tags(s)

		buf.WriteString(`<article class="snippet"`)
		writeAttr(buf, "data-label", s.Label)
		writeAttr(buf, "data-markdown", strconv.FormatBool(s.IsMarkdown))
		writeAttr(buf, "data-template", strconv.FormatBool(s.IsTemplate))
		if category != "" {
			writeAttr(buf, "data-category", category)
		}
		if len(tags) > 0 {
			writeAttr(buf, "data-tags", strings.Join(tags, ","))
		}
		buf.WriteString(">\n")

		if s.Label != "" {
			buf.WriteString("<h2>")
			buf.WriteString(escapeHTML(s.Label))
			buf.WriteString("</h2>\n")
		}
		if category != "" || len(tags) > 0 {
			buf.WriteString(`<p class="meta">`)
			buf.WriteString(escapeHTML(strings.TrimSpace(category + " " + hashTags(tags))))
			buf.WriteString("</p>\n")
		}

		buf.WriteString("<pre class=\"content\">\n")
		buf.WriteString(escapeHTML(s.Content))
		buf.WriteString("</pre>\n")

		if s.IsMarkdown {
			var rendered bytes.Buffer
			if err := markdownRenderer.Convert([]byte(s.Content), &rendered); err != nil {
				return err
			}
			buf.WriteString(`<div class="rendered">`)
			buf.Write(previewPolicy.SanitizeBytes(rendered.Bytes()))
			buf.WriteString("</div>\n")
		}
		buf.WriteString("</article>\n")
	}

	buf.WriteString(htmlFoot)
	return nil
}

func writeAttr(buf *bytes.Buffer, name, value string) {
	buf.WriteByte(' ')
	buf.WriteString(name)
	buf.WriteString(`="`)
	buf.WriteString(escapeHTML(value))
	buf.WriteByte('"')
}

// escapeHTML escapes markup characters plus CR, which tokenizers would
// otherwise fold into LF.
func escapeHTML(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\r", "&#13;")
}

func hashTags(tags []string) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = "#" + t
	}
	return strings.Join(parts, " ")
}

func decodeHTML(doc []byte) ([]Proposed, error) {
	out, found, err := decodeArticles(doc)
	if err != nil {
		return nil, err
	}
	if found {
		return out, nil
	}
	return decodeBlocks(doc)
}

// decodeArticles reads the layout written by encodeHTML. found is false when
// the document has no snippet articles at all.
func decodeArticles(doc []byte) (out []Proposed, found bool, err error) {
	z := nethtml.NewTokenizer(bytes.NewReader(doc))

	var (
		cur       *Proposed
		inContent bool
		gotBody   bool
		content   strings.Builder
	)

	for {
		tt := z.Next()
		switch tt {
		case nethtml.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				if cur != nil {
					return nil, true, apperror.ValidationFailed("document", "unterminated snippet article")
				}
				return out, found, nil
			}
			return nil, found, apperror.ValidationFailed("document", "malformed html: "+z.Err().Error())

		case nethtml.StartTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Article && hasClass(tok, "snippet"):
				found = true
				cur = &Proposed{
					Label:        attr(tok, "data-label"),
					IsMarkdown:   attr(tok, "data-markdown") == "true",
					IsTemplate:   attr(tok, "data-template") == "true",
					CategoryName: attr(tok, "data-category"),
					TagLabels:    splitTags(attr(tok, "data-tags")),
				}
				gotBody = false
			case cur != nil && !gotBody && tok.DataAtom == atom.Pre && hasClass(tok, "content"):
				inContent = true
				content.Reset()
			}

		case nethtml.TextToken:
			if inContent {
				content.Write(z.Text())
			}

		case nethtml.EndTagToken:
			tok := z.Token()
			switch {
			case inContent && tok.DataAtom == atom.Pre:
				inContent = false
				gotBody = true
				cur.Content = strings.TrimPrefix(content.String(), "\n")
			case cur != nil && tok.DataAtom == atom.Article:
				out = append(out, *cur)
				cur = nil
			}
		}
	}
}

// decodeBlocks is the fallback for arbitrary HTML: every outermost <pre>,
// <p> or <li> with visible text becomes one snippet.
func decodeBlocks(doc []byte) ([]Proposed, error) {
	z := nethtml.NewTokenizer(bytes.NewReader(doc))

	var (
		out   []Proposed
		open  atom.Atom
		depth int
		text  strings.Builder
	)

	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return out, nil
			}
			return nil, apperror.ValidationFailed("document", "malformed html: "+z.Err().Error())

		case nethtml.StartTagToken:
			tok := z.Token()
			if open == 0 && isBlock(tok.DataAtom) {
				open, depth = tok.DataAtom, 1
				text.Reset()
			} else if open != 0 && tok.DataAtom == open {
				depth++
			}

		case nethtml.TextToken:
			if open != 0 {
				text.Write(z.Text())
			}

		case nethtml.EndTagToken:
			tok := z.Token()
			if open == 0 || tok.DataAtom != open {
				continue
			}
			depth--
			if depth > 0 {
				continue
			}
			content := text.String()
			if open != atom.Pre {
				content = strings.Join(strings.Fields(content), " ")
			} else {
				content = strings.TrimPrefix(content, "\n")
			}
			if strings.TrimSpace(content) != "" {
				out = append(out, Proposed{Content: content})
			}
			open = 0
		}
	}
}

func isBlock(a atom.Atom) bool {
	return a == atom.Pre || a == atom.P || a == atom.Li
}

func attr(tok nethtml.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(tok nethtml.Token, class string) bool {
	for _, c := range strings.Fields(attr(tok, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
