// Package markdown extracts plain text and image references from Markdown
// documents.
package markdown

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var engine = goldmark.New(goldmark.WithExtensions(extension.GFM))

func parse(source []byte) ast.Node {
	return engine.Parser().Parse(text.NewReader(source))
}

// StripFrontMatter drops a leading "---" fenced block. Documents without
// a closing fence are returned unchanged.
func StripFrontMatter(src string) string {
	normalized := strings.ReplaceAll(src, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return src
	}
	rest := normalized[len("---\n"):]
	for offset := 0; ; {
		i := strings.Index(rest[offset:], "---")
		if i < 0 {
			return src
		}
		start := offset + i
		end := start + 3
		atLineStart := start == 0 || rest[start-1] == '\n'
		atLineEnd := end == len(rest) || rest[end] == '\n'
		if atLineStart && atLineEnd {
			return strings.TrimLeft(rest[min(end+1, len(rest)):], "\n")
		}
		offset = end
	}
}

// PlainText returns the readable text of a Markdown document. Front matter,
// markup, images and HTML are dropped, code is kept verbatim and blocks are
// joined by a single space.
func PlainText(src string) string {
	source := []byte(StripFrontMatter(src))
	doc := parse(source)

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Image, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
				buf.WriteByte(' ')
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		default:
			if !entering && n.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}

// Letters returns the first n Han characters or ASCII letters of s.
func Letters(s string, n int) string {
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		switch {
		case unicode.Is(unicode.Han, r):
		case r < utf8.RuneSelf && unicode.IsLetter(r):
		default:
			continue
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// Image is one image reference found in a document.
type Image struct {
	Alt string
	URL string
}

// Images returns every image reference in document order.
func Images(src string) []Image {
	source := []byte(StripFrontMatter(src))
	doc := parse(source)

	var out []Image
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := n.(*ast.Image)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		var alt bytes.Buffer
		for c := img.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				alt.Write(t.Segment.Value(source))
			}
		}
		out = append(out, Image{Alt: alt.String(), URL: string(img.Destination)})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// FirstImageURL returns the first absolute http(s) image URL, or "".
func FirstImageURL(src string) string {
	for _, img := range Images(src) {
		lower := strings.ToLower(img.URL)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return img.URL
		}
	}
	return ""
}

var altEscaper = strings.NewReplacer("[", "", "]", "", "\n", " ")

// ImageMarkdown renders an image reference for insertion into a document.
func ImageMarkdown(alt, url string) string {
	return "![" + altEscaper.Replace(alt) + "](" + url + ")"
}
