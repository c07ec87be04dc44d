package arya

import (
	"strings"
	"unicode/utf8"

	"github.com/eringen/arya/credentials"
)

// MaskToken hides all but the prefix and the last four characters of a
// token ("ghp_…abcd"). Short tokens are masked completely.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	n := utf8.RuneCountInString(token)
	if n <= 8 {
		return strings.Repeat("•", n)
	}
	prefix := ""
	if i := strings.IndexByte(token, '_'); i > 0 && i < 12 {
		prefix = token[:i+1]
	}
	return prefix + "…" + token[len(token)-4:]
}

func settingsView(c *credentials.Credentials) *RepositorySettings {
	if c == nil {
		return nil
	}
	return &RepositorySettings{
		Token:      MaskToken(c.Token),
		Owner:      c.Owner,
		Repo:       c.Repo,
		Branch:     c.Branch,
		Directory:  c.Directory,
		Configured: c.Configured(),
	}
}
