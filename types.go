package arya

import (
	"github.com/eringen/arya/cdn"
	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/upload"
)

// RepositorySettings is a credentials record as the API shows it: the
// token is masked.
type RepositorySettings struct {
	Token      string `json:"token"`
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	Branch     string `json:"branch"`
	Directory  string `json:"imageDir,omitempty"`
	Configured bool   `json:"configured"`
}

// ConfigResponse answers GET /api/config.
type ConfigResponse struct {
	Content   *RepositorySettings `json:"content"`
	Image     *RepositorySettings `json:"image"`
	LinkRule  cdn.RuleID          `json:"linkRule"`
	LinkRules []cdn.Rule          `json:"linkRules"`
}

// SetConfigRequest is the body of PUT /api/config/:target.
type SetConfigRequest struct {
	Token     string `json:"token" validate:"required"`
	Owner     string `json:"owner" validate:"required"`
	Repo      string `json:"repo" validate:"required"`
	Branch    string `json:"branch"`
	Directory string `json:"imageDir"`
}

func (r SetConfigRequest) credentials() credentials.Credentials {
	return credentials.Credentials{
		Token:     r.Token,
		Owner:     r.Owner,
		Repo:      r.Repo,
		Branch:    r.Branch,
		Directory: r.Directory,
	}
}

// LinkRuleRequest is the body of PUT /api/config/link-rule.
type LinkRuleRequest struct {
	Rule string `json:"rule" validate:"required"`
}

// CreateRepositoryRequest is the body of POST /api/config/image/repository.
type CreateRepositoryRequest struct {
	Description string `json:"description" validate:"max=350"`
	Private     bool   `json:"private"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Password string `json:"password" form:"password" validate:"required"`
}

// SessionResponse answers GET /api/session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	CSRFToken     string `json:"csrfToken"`
}

// DeleteImageRequest is the body of DELETE /api/images.
type DeleteImageRequest struct {
	Path string `json:"path" validate:"required"`
	SHA  string `json:"sha" validate:"required"`
}

// UploadResponse answers POST /api/images.
type UploadResponse struct {
	Results   []upload.Result `json:"results"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// GalleryRequest is the body of POST /api/gallery. When URL is empty the
// first remote image referenced in Markdown is used.
type GalleryRequest struct {
	URL      string `json:"url" validate:"omitempty,url"`
	Markdown string `json:"markdown"`
	Date     string `json:"date"`
}
