package index

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// Tokenize splits s into lowercase runs of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})
}

// queryWords splits a lowercased query into its leading word and the words
// that follow a separator. The leading word is empty when the query starts
// with a separator.
func queryWords(q string) (lead string, anchored []string) {
	words := Tokenize(q)
	if len(words) == 0 {
		return "", nil
	}
	if r, _ := utf8.DecodeRuneInString(q); isWordRune(r) {
		return words[0], words[1:]
	}
	return "", words
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// distinct concatenates token lists, keeping the first of each.
func distinct(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, tok := range list {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}

// PlainText renders Markdown source to the text a reader would see.
//
// AST WALK:
// goldmark parses into a tree whose leaves (ast.Text) hold byte segments into
// the source. Code blocks keep their content in Lines() rather than children.
// HTML blocks and inline raw HTML are skipped.
func PlainText(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			b.WriteByte(' ')
		case *ast.String:
			b.Write(node.Value)
			b.WriteByte(' ')
		case *ast.AutoLink:
			b.Write(node.Label(source))
			b.WriteByte(' ')
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			b.WriteByte(' ')
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
