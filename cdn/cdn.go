// Package cdn turns repository file paths into public image URLs through
// third-party mirrors of GitHub content.
package cdn

import (
	"strings"
	"unicode"
)

// RuleID identifies a link rule.
type RuleID string

const (
	GitHub        RuleID = "github"
	JsDelivr      RuleID = "jsdelivr"
	Statically    RuleID = "statically"
	ChinaJsDelivr RuleID = "china-jsdelivr"
)

// DefaultRule is used when nothing has been selected.
const DefaultRule = JsDelivr

// Rule is an immutable URL template with {owner} {repo} {branch} {path}
// placeholders.
type Rule struct {
	ID       RuleID `json:"id"`
	Name     string `json:"name"`
	Template string `json:"template"`
}

var rules = []Rule{
	{ID: GitHub, Name: "GitHub", Template: "https://github.com/{owner}/{repo}/raw/{branch}/{path}"},
	{ID: JsDelivr, Name: "jsDelivr", Template: "https://cdn.jsdelivr.net/gh/{owner}/{repo}@{branch}/{path}"},
	{ID: Statically, Name: "Statically", Template: "https://cdn.statically.io/gh/{owner}/{repo}/{branch}/{path}"},
	{ID: ChinaJsDelivr, Name: "China jsDelivr", Template: "https://jsd.cdn.zzko.cn/gh/{owner}/{repo}@{branch}/{path}"},
}

// Rules returns the catalogue in display order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Lookup finds a rule by id. Ids match case-insensitively and ignore
// punctuation, so "ChinaJsDelivr" and "china-jsdelivr" are the same rule.
func Lookup(id string) (Rule, bool) {
	target := normalize(id)
	if target == "" {
		return Rule{}, false
	}
	for _, r := range rules {
		if normalize(string(r.ID)) == target {
			return r, true
		}
	}
	return Rule{}, false
}

// Default returns the default rule.
func Default() Rule {
	r, _ := Lookup(string(DefaultRule))
	return r
}

// URL substitutes the repository coordinates into the rule template.
func (r Rule) URL(owner, repo, branch, path string) string {
	return strings.NewReplacer(
		"{owner}", owner,
		"{repo}", repo,
		"{branch}", branch,
		"{path}", strings.TrimLeft(path, "/"),
	).Replace(r.Template)
}

func normalize(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(id)) {
		if (r >= 'a' && r <= 'z') || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
