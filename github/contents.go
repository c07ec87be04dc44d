package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/eringen/arya/errs"
)

// File is a decoded file read from the repository.
type File struct {
	Path    string
	SHA     string
	Size    int64
	Content string
}

// RemoteFile identifies a blob after a create or update. Branch is the
// branch the write landed on.
type RemoteFile struct {
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	HTMLURL     string `json:"htmlUrl"`
	DownloadURL string `json:"downloadUrl"`
	Branch      string `json:"branch"`
}

// Entry is one item of a directory listing.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url"`
}

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type writeResponse struct {
	Content struct {
		Path        string `json:"path"`
		SHA         string `json:"sha"`
		HTMLURL     string `json:"html_url"`
		DownloadURL string `json:"download_url"`
	} `json:"content"`
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func withRef(endpoint, branch string) string {
	if branch == "" {
		return endpoint
	}
	return endpoint + "?ref=" + url.QueryEscape(branch)
}

// ReadFile returns the decoded file at path on the configured branch, or
// nil when the file does not exist.
func (c *Client) ReadFile(ctx context.Context, path string) (*File, error) {
	var resp contentResponse
	err := c.do(ctx, http.MethodGet, withRef(c.contentsPath(path), c.branch()), nil, &resp)
	if errs.Is(err, errs.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.Type != "" && resp.Type != "file" {
		return nil, errs.Newf(errs.ValidationFailed, "%s is a %s, not a file", path, resp.Type).
			WithHint("choose a file path, not a directory")
	}
	raw, err := base64.StdEncoding.DecodeString(stripWhitespace(resp.Content))
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "decode content of "+path, err)
	}
	return &File{Path: resp.Path, SHA: resp.SHA, Size: resp.Size, Content: string(raw)}, nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
}

// WriteFile creates (empty sha) or updates (current sha) the file at path
// with base64 content. When the configured branch answers 404 the write is
// replayed once against the repository default branch; if that also fails
// the original error is returned.
func (c *Client) WriteFile(ctx context.Context, path, content, message, sha string) (*RemoteFile, error) {
	branch := c.branch()
	file, err := c.put(ctx, path, content, message, sha, branch)
	if err == nil || !errs.Is(err, errs.NotFound) || !c.policy.allowsFallback() {
		return file, err
	}

	fallback, ferr := c.DefaultBranch(ctx)
	if ferr != nil {
		c.logger.Warn("default branch lookup failed", zap.Error(ferr))
		return nil, err
	}
	if fallback == "" || strings.EqualFold(strings.TrimSpace(fallback), strings.TrimSpace(branch)) {
		return nil, err
	}

	c.logger.Warn("configured branch missing, retrying on default branch",
		zap.String("branch", branch), zap.String("default_branch", fallback), zap.String("path", path))
	file, rerr := c.put(ctx, path, content, message, sha, fallback)
	if rerr != nil {
		c.logger.Warn("write on default branch failed", zap.String("branch", fallback), zap.Error(rerr))
		return nil, err
	}

	c.mu.Lock()
	c.creds.Branch = fallback
	c.mu.Unlock()
	if c.onFallback != nil {
		c.onFallback(branch, fallback)
	}
	return file, nil
}

func (c *Client) put(ctx context.Context, path, content, message, sha, branch string) (*RemoteFile, error) {
	var resp writeResponse
	body := writeRequest{Message: message, Content: content, Branch: branch, SHA: sha}
	if err := c.do(ctx, http.MethodPut, c.contentsPath(path), body, &resp); err != nil {
		var e *errs.Error
		if errs.Is(err, errs.NotFound) && asError(err, &e) {
			creds := c.Credentials()
			e.Hint = "branch \"" + branch + "\" or repository " + creds.FullName() +
				" not found: check the spelling of the branch and repository"
		}
		return nil, err
	}
	return &RemoteFile{
		Path:        resp.Content.Path,
		SHA:         resp.Content.SHA,
		HTMLURL:     resp.Content.HTMLURL,
		DownloadURL: resp.Content.DownloadURL,
		Branch:      branch,
	}, nil
}

// DeleteFile removes the file at path. A stale sha surfaces as Conflict.
func (c *Client) DeleteFile(ctx context.Context, path, sha, message string) error {
	if strings.TrimSpace(sha) == "" {
		return errs.Newf(errs.ValidationFailed, "deleting %s requires the current sha", path).
			WithHint("read the file first and pass its current sha")
	}
	if message == "" {
		message = "Delete " + path
	}
	body := deleteRequest{Message: message, SHA: sha, Branch: c.branch()}
	return c.do(ctx, http.MethodDelete, c.contentsPath(path), body, nil)
}

// ListDirectory lists the directory at path. A missing directory yields an
// empty listing.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]Entry, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, withRef(c.contentsPath(path), c.branch()), nil, &raw)
	if errs.Is(err, errs.NotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		var single Entry
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, errs.Wrap(errs.Unknown, "decode listing of "+path, err)
		}
		return []Entry{single}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errs.Wrap(errs.Unknown, "decode listing of "+path, err)
	}
	return entries, nil
}
