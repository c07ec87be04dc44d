package publish

import (
	"fmt"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/eringen/arya/markdown"
)

var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

const indicatorChars = "-?:,[]{}#&*!|>'\"%@`"

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

// needsQuotes reports whether s must be double quoted to survive a YAML
// parse as the same string.
func needsQuotes(s string) bool {
	if strings.ContainsAny(s, ": \t\n\r") {
		return true
	}
	if strings.ContainsAny(s[:1], indicatorChars) {
		return true
	}
	switch plainTag(s) {
	case "!!str", "!!int", "!!float", "!!bool":
		return false
	}
	return true
}

// plainTag is the tag YAML resolves for s written as a plain scalar.
// Null and timestamp forms would not parse back as the same string.
func plainTag(s string) string {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil || len(doc.Content) != 1 {
		return ""
	}
	n := doc.Content[0]
	if n.Kind != yaml.ScalarNode || n.Value != s {
		return ""
	}
	return n.ShortTag()
}

// formatValue renders one value; ok is false for values that are omitted.
func formatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		if x == "" {
			return "", false
		}
		if needsQuotes(x) {
			return quote(x), true
		}
		return x, true
	case []string:
		items := make([]string, len(x))
		for i, item := range x {
			items[i] = quote(item)
		}
		return "[" + strings.Join(items, ", ") + "]", true
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return formatTime(x), true
	case fmt.Stringer:
		return formatValue(x.String())
	default:
		return fmt.Sprint(x), true
	}
}

// RenderFrontMatter renders meta as "key: value" lines without fences.
// Keys whose value is nil or an empty string are dropped.
func RenderFrontMatter(meta Metadata) string {
	var b strings.Builder
	for _, f := range meta {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			continue
		}
		value, ok := formatValue(f.Value)
		if !ok {
			continue
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}

// Render builds the document stored for ct. General documents are the body
// verbatim; every other type gets a fenced front-matter block, replacing any
// block the body already carries.
func Render(ct ContentType, meta Metadata, body string) string {
	if ct == General {
		return body
	}
	return "---\n" + RenderFrontMatter(meta) + "---\n\n" + markdown.StripFrontMatter(body)
}

// ParseDocument splits src into its front matter and body. Scalars keep their
// source text, flow or block sequences become []string and timestamps become
// time.Time. A document without front matter yields empty metadata.
func ParseDocument(src string) (Metadata, string, error) {
	var doc yaml.Node
	rest, err := frontmatter.Parse(strings.NewReader(src), &doc, yamlFormat)
	if err != nil {
		return nil, "", fmt.Errorf("parse front matter: %w", err)
	}
	body := strings.TrimLeft(string(rest), "\r\n")

	meta := Metadata{}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	switch root.Kind {
	case 0:
		return meta, body, nil
	case yaml.MappingNode:
	default:
		return nil, "", fmt.Errorf("front matter is not a mapping")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		v, err := nodeValue(value)
		if err != nil {
			return nil, "", fmt.Errorf("front matter %q: %w", key, err)
		}
		if v == nil {
			continue
		}
		meta.Set(key, v)
	}
	return meta, body, nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!timestamp":
			var t time.Time
			if err := n.Decode(&t); err != nil {
				return nil, err
			}
			return t, nil
		}
		return n.Value, nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("nested sequences are not supported")
			}
			items = append(items, item.Value)
		}
		return items, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	default:
		return nil, fmt.Errorf("unsupported %v value", n.Tag)
	}
}
