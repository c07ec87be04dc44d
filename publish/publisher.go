// Package publish turns editor documents into repository files: front
// matter rendering and parsing, deterministic path derivation, and the
// read-then-write publish flow.
package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/eringen/arya/errs"
	"github.com/eringen/arya/github"
)

// Repository is the subset of the repository client the publisher needs.
type Repository interface {
	ReadFile(ctx context.Context, path string) (*github.File, error)
	WriteFile(ctx context.Context, path, content, message, sha string) (*github.RemoteFile, error)
	ListDirectory(ctx context.Context, path string) ([]github.Entry, error)
}

// Action tells whether a publish created or updated the file.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
)

// Request is one document to publish.
type Request struct {
	Type     ContentType `json:"type"`
	Metadata Metadata    `json:"metadata"`
	Body     string      `json:"body"`
}

// Result is returned after a successful publish.
type Result struct {
	Success  bool   `json:"success"`
	FilePath string `json:"filePath"`
	HTMLURL  string `json:"htmlUrl"`
	Action   Action `json:"action"`
	SHA      string `json:"sha"`
	Branch   string `json:"branch"`
}

// Publisher writes documents through a Repository.
type Publisher struct {
	repo   Repository
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock replaces time.Now; paths are derived from it.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Publisher writing through repo.
func New(repo Repository, opts ...Option) *Publisher {
	p := &Publisher{repo: repo, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish renders req, reads the target path to pick create or update, and
// writes the document. Errors are returned as is.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	ct, err := ParseContentType(string(req.Type))
	if err != nil {
		return nil, err
	}
	if ct == Gallery {
		return nil, errs.New(errs.ValidationFailed, "gallery entries are published from an image URL").
			WithHint("publish the image URL through the gallery endpoint")
	}

	now := p.now()
	filePath := GenerateFilePath(ct, req.Metadata, "", req.Body, now)
	content := Render(ct, req.Metadata, req.Body)

	existing, err := p.repo.ReadFile(ctx, filePath)
	if err != nil {
		return nil, err
	}
	action, verb, sha := ActionAdd, "Add", ""
	if existing != nil {
		action, verb, sha = ActionUpdate, "Update", existing.SHA
	}
	title := req.Metadata.Title()
	if title == "" {
		title = "Untitled"
	}
	message := fmt.Sprintf("%s %s: %s", verb, ct, title)

	file, err := p.repo.WriteFile(ctx, filePath, base64.StdEncoding.EncodeToString([]byte(content)), message, sha)
	if err != nil {
		return nil, err
	}
	p.logger.Info("document published",
		zap.String("path", filePath),
		zap.String("action", string(action)),
		zap.String("branch", file.Branch))

	return &Result{
		Success:  true,
		FilePath: filePath,
		HTMLURL:  file.HTMLURL,
		Action:   action,
		SHA:      file.SHA,
		Branch:   file.Branch,
	}, nil
}

// GalleryEntry is the JSON document stored for a gallery image.
type GalleryEntry struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
	Date      string `json:"date"`
}

// PublishGallery stores imageURL as a gallery entry dated date (today when
// zero) under src/content/photos.
func (p *Publisher) PublishGallery(ctx context.Context, imageURL string, date time.Time) (*Result, error) {
	imageURL = strings.TrimSpace(imageURL)
	lower := strings.ToLower(imageURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, errs.New(errs.ValidationFailed, "gallery image needs an absolute http(s) URL").
			WithHint("upload an image first and use its link")
	}

	now := p.now()
	if date.IsZero() {
		date = now
	}
	name := "photo-" + now.Format(DateLayout) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
	filePath := Gallery.Directory() + "/" + name + ".json"

	raw, err := json.MarshalIndent(GalleryEntry{URL: imageURL, Thumbnail: imageURL, Date: formatTime(date)}, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "encode gallery entry", err)
	}
	file, err := p.repo.WriteFile(ctx, filePath, base64.StdEncoding.EncodeToString(raw), "Add gallery image: "+name, "")
	if err != nil {
		return nil, err
	}
	p.logger.Info("gallery image published", zap.String("path", filePath))
	return &Result{
		Success:  true,
		FilePath: filePath,
		HTMLURL:  file.HTMLURL,
		Action:   ActionAdd,
		SHA:      file.SHA,
		Branch:   file.Branch,
	}, nil
}

// Document is one published file in a listing.
type Document struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
}

// ListPublished lists the markdown files (JSON files for gallery) in the
// directory of ct. A missing directory yields an empty list.
func (p *Publisher) ListPublished(ctx context.Context, ct ContentType) ([]Document, error) {
	entries, err := p.repo.ListDirectory(ctx, ct.Directory())
	if err != nil {
		return nil, err
	}
	ext := ".md"
	if ct == Gallery {
		ext = ".json"
	}
	files := lo.Filter(entries, func(e github.Entry, _ int) bool {
		return e.Type != "dir" && strings.EqualFold(path.Ext(e.Name), ext)
	})
	return lo.Map(files, func(e github.Entry, _ int) Document {
		return Document{
			Name:        e.Name,
			Path:        e.Path,
			SHA:         e.SHA,
			Size:        e.Size,
			URL:         e.HTMLURL,
			DownloadURL: e.DownloadURL,
		}
	}), nil
}
