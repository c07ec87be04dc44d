package publish

import (
	"strings"
	"time"
	"unicode"

	"github.com/eringen/arya/errs"
	"github.com/eringen/arya/markdown"
)

// ContentType selects the destination directory and file naming.
type ContentType string

const (
	Blog    ContentType = "blog"
	Essay   ContentType = "essay"
	General ContentType = "general"
	Gallery ContentType = "gallery"
)

// ParseContentType lowercases s. Any non-empty name made of letters, digits,
// "-" or "_" is accepted; names other than blog and essay land under docs/.
func ParseContentType(s string) (ContentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", errs.New(errs.ValidationFailed, "content type is required").
			WithHint(`use "blog", "essay", "gallery" or "general"`)
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return "", errs.Newf(errs.ValidationFailed, "invalid content type %q", s).
				WithHint(`use "blog", "essay", "gallery" or "general"`)
		}
	}
	return ContentType(s), nil
}

// Directory returns the repository directory holding documents of ct.
func (ct ContentType) Directory() string {
	switch ct {
	case Blog:
		return "src/content/posts"
	case Essay:
		return "src/content/essays"
	case Gallery:
		return "src/content/photos"
	default:
		return "docs"
	}
}

// Slugify keeps word characters, CJK ideographs, whitespace and "-", turns
// whitespace runs into "-" and lowercases. An empty result becomes "untitled".
func Slugify(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r >= 0x4e00 && r <= 0x9fa5:
		default:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte('-')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// GenerateFilePath derives the repository path for a document. title falls
// back to the "title" metadata field; body is only used by essays. The result
// depends only on its arguments.
func GenerateFilePath(ct ContentType, meta Metadata, title, body string, now time.Time) string {
	if strings.TrimSpace(title) == "" {
		title = meta.Title()
	}
	date := now.Format(DateLayout)
	clock := now.Format("150405")

	switch ct {
	case Blog:
		return ct.Directory() + "/" + Slugify(title) + "-" + clock + ".md"
	case Essay:
		name := date
		if letters := markdown.Letters(markdown.PlainText(body), 4); letters != "" {
			name += "-" + letters
		}
		return ct.Directory() + "/" + name + "-" + clock + ".md"
	default:
		return "docs/" + date + "-" + Slugify(title) + "-" + clock + ".md"
	}
}
