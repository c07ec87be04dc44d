package github

import (
	"context"
	"net/http"
	"strings"

	"github.com/eringen/arya/errs"
)

type userResponse struct {
	Login string `json:"login"`
}

type repoResponse struct {
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Permissions   struct {
		Admin bool `json:"admin"`
		Push  bool `json:"push"`
		Pull  bool `json:"pull"`
	} `json:"permissions"`
}

// AccessReport summarizes what the token may do on the repository.
type AccessReport struct {
	User           string `json:"user"`
	RepoFullName   string `json:"repoFullName"`
	Private        bool   `json:"private"`
	DefaultBranch  string `json:"defaultBranch"`
	HasWriteAccess bool   `json:"hasWriteAccess"`
	Admin          bool   `json:"admin"`
	Problem        string `json:"problem,omitempty"`
	Hint           string `json:"hint,omitempty"`
}

// RepoStatus reports whether the repository exists.
type RepoStatus struct {
	Exists        bool   `json:"exists"`
	FullName      string `json:"fullName"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"defaultBranch"`
	HTMLURL       string `json:"htmlUrl"`
}

// TestAccess checks the token and the repository. Missing write access is
// reported in the result, not as an error.
func (c *Client) TestAccess(ctx context.Context) (*AccessReport, error) {
	var user userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	var repo repoResponse
	if err := c.do(ctx, http.MethodGet, c.repoPath(), nil, &repo); err != nil {
		return nil, err
	}
	report := &AccessReport{
		User:           user.Login,
		RepoFullName:   repo.FullName,
		Private:        repo.Private,
		DefaultBranch:  repo.DefaultBranch,
		HasWriteAccess: repo.Permissions.Push || repo.Permissions.Admin,
		Admin:          repo.Permissions.Admin,
	}
	if !report.HasWriteAccess {
		report.Problem = "token has no write access to " + repo.FullName
		report.Hint = errs.DefaultHint(errs.Forbidden)
	}
	return report, nil
}

// DefaultBranch returns the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	var repo repoResponse
	if err := c.do(ctx, http.MethodGet, c.repoPath(), nil, &repo); err != nil {
		return "", err
	}
	return strings.TrimSpace(repo.DefaultBranch), nil
}

// CheckRepository reports whether the configured repository exists. Only
// a 404 maps to Exists=false; other failures are returned.
func (c *Client) CheckRepository(ctx context.Context) (*RepoStatus, error) {
	var repo repoResponse
	err := c.do(ctx, http.MethodGet, c.repoPath(), nil, &repo)
	if errs.Is(err, errs.NotFound) {
		return &RepoStatus{FullName: c.Credentials().FullName()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &RepoStatus{
		Exists:        true,
		FullName:      repo.FullName,
		Private:       repo.Private,
		DefaultBranch: repo.DefaultBranch,
		HTMLURL:       repo.HTMLURL,
	}, nil
}

type createRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// CreateRepository creates the configured repository under the token's
// account, initialized with a README so the default branch exists.
func (c *Client) CreateRepository(ctx context.Context, description string, private bool) (*RepoStatus, error) {
	body := createRepoRequest{
		Name:        c.Credentials().Repo,
		Description: description,
		Private:     private,
		AutoInit:    true,
	}
	var repo repoResponse
	if err := c.do(ctx, http.MethodPost, "/user/repos", body, &repo); err != nil {
		return nil, err
	}
	return &RepoStatus{
		Exists:        true,
		FullName:      repo.FullName,
		Private:       repo.Private,
		DefaultBranch: repo.DefaultBranch,
		HTMLURL:       repo.HTMLURL,
	}, nil
}
