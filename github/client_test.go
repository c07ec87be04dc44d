package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/errs"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type fakeGitHub struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r *http.Request, body map[string]any)
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	f.mu.Unlock()
	f.handler(w, r, body)
}

func (f *fakeGitHub) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeGitHub, branch string, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	creds := credentials.Credentials{Token: "tok", Owner: "octo", Repo: "blog", Branch: branch}
	c, err := NewClient(creds, append([]Option{WithBaseURL(srv.URL)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(credentials.Credentials{Owner: "o", Repo: "r"})
	assert.True(t, errs.Is(err, errs.ConfigurationMissing))
}

func TestReadFile(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("# hello\n"))
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		assert.Equal(t, "token tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/repos/octo/blog/contents/docs/a.md":
			writeJSON(w, 200, map[string]any{
				"type": "file", "path": "docs/a.md", "sha": "abc", "size": 8,
				"content": encoded[:4] + "\n" + encoded[4:],
			})
		default:
			writeJSON(w, 404, map[string]string{"message": "Not Found"})
		}
	}}
	c := newTestClient(t, fake, "dev")

	f, err := c.ReadFile(context.Background(), "docs/a.md")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "# hello\n", f.Content)
	assert.Equal(t, "abc", f.SHA)
	assert.Equal(t, "ref=dev", fake.requests[0].Query)

	missing, err := c.ReadFile(context.Background(), "docs/missing.md")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header string
		msg    string
		want   errs.Kind
	}{
		{"unauthorized", 401, "", "Bad credentials", errs.Unauthorized},
		{"forbidden", 403, "", "Resource not accessible", errs.Forbidden},
		{"rate limit header", 403, "0", "Forbidden", errs.RateLimited},
		{"rate limit message", 403, "", "API rate limit exceeded", errs.RateLimited},
		{"too many requests", 429, "", "slow down", errs.RateLimited},
		{"conflict", 409, "", "sha does not match", errs.Conflict},
		{"unprocessable", 422, "", "sha wasn't supplied", errs.Conflict},
		{"server error", 502, "", "bad gateway", errs.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGitHub{handler: func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
				if tt.header != "" {
					w.Header().Set("X-RateLimit-Remaining", tt.header)
				}
				writeJSON(w, tt.status, map[string]string{"message": tt.msg})
			}}
			c := newTestClient(t, fake, "main")
			_, err := c.ReadFile(context.Background(), "a.md")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.KindOf(err))

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.status, e.Status)
			assert.Contains(t, e.Message, tt.msg)
		})
	}
}

func TestWriteFileSendsBranchAndSHA(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, _ *http.Request, body map[string]any) {
		writeJSON(w, 201, map[string]any{"content": map[string]any{
			"path": "images/a.png", "sha": "new", "html_url": "https://github.com/x", "download_url": "https://raw/x",
		}})
	}}
	c := newTestClient(t, fake, "main")

	file, err := c.WriteFile(context.Background(), "images/a.png", "AAAA", "Upload image: a.png", "")
	require.NoError(t, err)
	assert.Equal(t, "new", file.SHA)
	assert.Equal(t, "main", file.Branch)

	body := fake.requests[0].Body
	assert.Equal(t, "main", body["branch"])
	assert.Equal(t, "AAAA", body["content"])
	_, hasSHA := body["sha"]
	assert.False(t, hasSHA)

	_, err = c.WriteFile(context.Background(), "images/a.png", "BBBB", "Update", "old")
	require.NoError(t, err)
	assert.Equal(t, "old", fake.requests[1].Body["sha"])
}

func TestWriteFileFallsBackToDefaultBranchOnce(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/octo/blog":
			writeJSON(w, 200, map[string]any{"full_name": "octo/blog", "default_branch": "master"})
		case r.Method == http.MethodPut && body["branch"] == "master":
			writeJSON(w, 201, map[string]any{"content": map[string]any{"path": "p.md", "sha": "s1"}})
		default:
			writeJSON(w, 404, map[string]string{"message": "Branch main not found"})
		}
	}}
	var from, to string
	c := newTestClient(t, fake, "main", WithBranchFallbackHook(func(old, next string) { from, to = old, next }))

	file, err := c.WriteFile(context.Background(), "p.md", "AAAA", "Add post", "")
	require.NoError(t, err)
	assert.Equal(t, "master", file.Branch)
	assert.Equal(t, "master", c.Credentials().Branch)
	assert.Equal(t, "main", from)
	assert.Equal(t, "master", to)
	assert.Equal(t, 1, fake.count(http.MethodGet, "/repos/octo/blog"))
	assert.Equal(t, 2, fake.count(http.MethodPut, "/repos/octo/blog/contents/p.md"))
}

func TestWriteFileReturnsOriginalErrorWhenFallbackFails(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch {
		case r.Method == http.MethodGet:
			writeJSON(w, 200, map[string]any{"default_branch": "master"})
		case body["branch"] == "master":
			writeJSON(w, 403, map[string]string{"message": "Resource not accessible"})
		default:
			writeJSON(w, 404, map[string]string{"message": "Not Found"})
		}
	}}
	c := newTestClient(t, fake, "main")

	_, err := c.WriteFile(context.Background(), "p.md", "AAAA", "Add post", "")
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Contains(t, errs.HintFor(err), `branch "main"`)
	assert.Equal(t, "main", c.Credentials().Branch)
	assert.Equal(t, 2, fake.count(http.MethodPut, "/repos/octo/blog/contents/p.md"))
}

func TestWriteFileSkipsFallbackWhenDefaultMatches(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		if r.Method == http.MethodGet {
			writeJSON(w, 200, map[string]any{"default_branch": "Main"})
			return
		}
		writeJSON(w, 404, map[string]string{"message": "Not Found"})
	}}
	c := newTestClient(t, fake, "main")

	_, err := c.WriteFile(context.Background(), "p.md", "AAAA", "Add post", "")
	assert.True(t, errs.Is(err, errs.NotFound))
	assert.Equal(t, 1, fake.count(http.MethodPut, "/repos/octo/blog/contents/p.md"))
}

func TestWriteFileWithoutFallbackPolicy(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
		writeJSON(w, 404, map[string]string{"message": "Not Found"})
	}}
	policy := DefaultRetryPolicy()
	policy.FallbackToDefaultBranch = false
	c := newTestClient(t, fake, "main", WithRetryPolicy(policy))

	_, err := c.WriteFile(context.Background(), "p.md", "AAAA", "Add post", "")
	assert.True(t, errs.Is(err, errs.NotFound))
	assert.Equal(t, 0, fake.count(http.MethodGet, "/repos/octo/blog"))
}

func TestTimeoutKind(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}}
	policy := DefaultRetryPolicy()
	policy.Timeout = 50 * time.Millisecond
	c := newTestClient(t, fake, "main", WithRetryPolicy(policy))

	_, err := c.ReadFile(context.Background(), "a.md")
	assert.Equal(t, errs.Timeout, errs.KindOf(err))
}

func TestNetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(credentials.Credentials{Token: "t", Owner: "o", Repo: "r"}, WithBaseURL(base))
	require.NoError(t, err)
	_, err = c.ListDirectory(context.Background(), "images")
	assert.Equal(t, errs.NetworkUnreachable, errs.KindOf(err))
}

func TestListDirectory(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		if r.URL.Path == "/repos/octo/blog/contents/images/2024/03" {
			writeJSON(w, 200, []map[string]any{
				{"name": "a.png", "path": "images/2024/03/a.png", "sha": "1", "size": 10, "type": "file"},
				{"name": "sub", "path": "images/2024/03/sub", "sha": "2", "type": "dir"},
			})
			return
		}
		writeJSON(w, 404, map[string]string{"message": "Not Found"})
	}}
	c := newTestClient(t, fake, "main")

	entries, err := c.ListDirectory(context.Background(), "/images/2024/03/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.png", entries[0].Name)
	assert.Equal(t, "dir", entries[1].Type)

	empty, err := c.ListDirectory(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDeleteFile(t *testing.T) {
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, _ *http.Request, body map[string]any) {
		if body["sha"] == "stale" {
			writeJSON(w, 409, map[string]string{"message": "does not match"})
			return
		}
		writeJSON(w, 200, map[string]any{"commit": map[string]any{}})
	}}
	c := newTestClient(t, fake, "main")

	err := c.DeleteFile(context.Background(), "a.png", "", "")
	assert.True(t, errs.Is(err, errs.ValidationFailed))
	assert.Contains(t, errs.HintFor(err), "current sha")
	assert.Empty(t, fake.requests)

	require.NoError(t, c.DeleteFile(context.Background(), "a.png", "fresh", ""))
	assert.Equal(t, "Delete a.png", fake.requests[0].Body["message"])

	err = c.DeleteFile(context.Background(), "a.png", "stale", "remove")
	assert.True(t, errs.Is(err, errs.Conflict))
	assert.Len(t, fake.requests, 2)
}

func TestTestAccess(t *testing.T) {
	push := false
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		if r.URL.Path == "/user" {
			writeJSON(w, 200, map[string]string{"login": "octocat"})
			return
		}
		writeJSON(w, 200, map[string]any{
			"full_name": "octo/blog", "private": true, "default_branch": "main",
			"permissions": map[string]bool{"admin": false, "push": push, "pull": true},
		})
	}}
	c := newTestClient(t, fake, "main")

	report, err := c.TestAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", report.User)
	assert.False(t, report.HasWriteAccess)
	assert.NotEmpty(t, report.Problem)
	assert.NotEmpty(t, report.Hint)

	push = true
	report, err = c.TestAccess(context.Background())
	require.NoError(t, err)
	assert.True(t, report.HasWriteAccess)
	assert.Empty(t, report.Problem)
}

func TestCheckAndCreateRepository(t *testing.T) {
	created := false
	fake := &fakeGitHub{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/user/repos":
			assert.Equal(t, "blog", body["name"])
			assert.Equal(t, true, body["auto_init"])
			created = true
			writeJSON(w, 201, map[string]any{"full_name": "octo/blog", "default_branch": "main"})
		case created:
			writeJSON(w, 200, map[string]any{"full_name": "octo/blog", "default_branch": "main"})
		default:
			writeJSON(w, 404, map[string]string{"message": "Not Found"})
		}
	}}
	c := newTestClient(t, fake, "main")

	status, err := c.CheckRepository(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Equal(t, "octo/blog", status.FullName)

	status, err = c.CreateRepository(context.Background(), "images", false)
	require.NoError(t, err)
	assert.True(t, status.Exists)

	status, err = c.CheckRepository(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, "main", status.DefaultBranch)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "images/2024/03/my%20cat%3F.png", EscapePath("/images/2024/03/my cat?.png"))
}
