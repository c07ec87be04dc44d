// Package upload validates, shrinks and stores images in the image
// repository and returns their CDN links.
package upload

import (
	"context"
	"encoding/base64"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/eringen/arya/cdn"
	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/errs"
	"github.com/eringen/arya/github"
	"github.com/eringen/arya/imaging"
	"github.com/eringen/arya/markdown"
)

const (
	MaxFileSize   = 50 << 20 // 50MB
	maxBaseRunes  = 50
	suffixLength  = 5
	fallbackBase  = "image"
	commitMessage = "Upload image: "
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var suffixCharset = []rune("abcdefghijklmnopqrstuvwxyz0123456789")

// Repository is the subset of the repository client the uploader needs.
type Repository interface {
	WriteFile(ctx context.Context, path, content, message, sha string) (*github.RemoteFile, error)
	ListDirectory(ctx context.Context, path string) ([]github.Entry, error)
	DeleteFile(ctx context.Context, path, sha, message string) error
}

// File is one image to upload. MIME is sniffed from Data when empty.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Stage names an orchestrator checkpoint.
type Stage string

const (
	StagePreparing  Stage = "preparing"
	StageConverting Stage = "converting"
	StageUploading  Stage = "uploading"
	StageGenerating Stage = "generating"
	StageCompleted  Stage = "completed"
)

// Progress reports one checkpoint for the file at Index (0-based) of Total.
// Compression checkpoints carry the processor's stage names.
type Progress struct {
	File    string `json:"file"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

// ProgressFunc receives progress reports. It may be nil.
type ProgressFunc func(Progress)

// Result is the per-file outcome of an upload.
type Result struct {
	Success      bool      `json:"success"`
	FileName     string    `json:"fileName"`
	Path         string    `json:"path,omitempty"`
	SHA          string    `json:"sha,omitempty"`
	URL          string    `json:"url,omitempty"`
	Markdown     string    `json:"markdown,omitempty"`
	OriginalSize int       `json:"originalSize"`
	FinalSize    int       `json:"finalSize,omitempty"`
	Compressed   bool      `json:"compressed,omitempty"`
	Error        string    `json:"error,omitempty"`
	Kind         errs.Kind `json:"kind,omitempty"`
	Hint         string    `json:"hint,omitempty"`
}

// Uploader stores images in one repository.
type Uploader struct {
	repo      Repository
	creds     credentials.Credentials
	rule      cdn.Rule
	processor *imaging.Processor
	now       func() time.Time
	suffix    func() string
	logger    *zap.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithProcessor replaces the default 10MB processor.
func WithProcessor(p *imaging.Processor) Option {
	return func(u *Uploader) {
		if p != nil {
			u.processor = p
		}
	}
}

// WithClock replaces time.Now for file naming and bucketing.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		if now != nil {
			u.now = now
		}
	}
}

// WithSuffix replaces the random file name suffix generator.
func WithSuffix(fn func() string) Option {
	return func(u *Uploader) {
		if fn != nil {
			u.suffix = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// New returns an Uploader writing to repo. creds supply the owner, repo,
// branch and image directory used for paths and links.
func New(repo Repository, creds credentials.Credentials, rule cdn.Rule, opts ...Option) *Uploader {
	u := &Uploader{
		repo:      repo,
		creds:     creds.Normalize(),
		rule:      rule,
		processor: imaging.NewProcessor(),
		now:       time.Now,
		suffix:    randomSuffix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func randomSuffix() string {
	return lo.RandomString(suffixLength, suffixCharset)
}

const fileHint = "only JPEG, PNG, GIF and WebP images up to 50MB are accepted"

// Validate checks the MIME type and size of f without touching the network
// and returns the effective MIME type.
func Validate(f File) (string, error) {
	if len(f.Data) == 0 {
		return "", errs.Newf(errs.ValidationFailed, "%s is empty", f.Name).WithHint(fileHint)
	}
	if len(f.Data) > MaxFileSize {
		return "", errs.Newf(errs.ValidationFailed, "%s is %d bytes, the limit is %d", f.Name, len(f.Data), MaxFileSize).WithHint(fileHint)
	}
	mime := strings.ToLower(strings.TrimSpace(f.MIME))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(f.Data).String()
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
	}
	if _, ok := allowedTypes[mime]; !ok {
		return "", errs.Newf(errs.ValidationFailed, "%s has unsupported type %s", f.Name, mime).WithHint(fileHint)
	}
	return mime, nil
}

// Upload stores one file. Files above the processor ceiling are compressed
// first; smaller files are stored byte for byte.
func (u *Uploader) Upload(ctx context.Context, f File, progress ProgressFunc) (*Result, error) {
	return u.upload(ctx, f, 0, 1, progress)
}

func (u *Uploader) upload(ctx context.Context, f File, index, total int, progress ProgressFunc) (*Result, error) {
	report := func(stage string, percent int) {
		if progress != nil {
			progress(Progress{File: f.Name, Index: index, Total: total, Stage: stage, Percent: percent})
		}
	}

	report(string(StagePreparing), 0)
	mime, err := Validate(f)
	if err != nil {
		return nil, err
	}

	data, compressed := f.Data, false
	if len(f.Data) > u.processor.Ceiling() {
		res, err := u.processor.Process(ctx, f.Data, func(p imaging.Progress) {
			report(string(p.Stage), p.Percent)
		})
		if err != nil {
			return nil, err
		}
		data, compressed = res.Data, res.Compressed
	}

	report(string(StageConverting), 85)
	now := u.now()
	name := FileName(f.Name, mime, now, u.suffix(), compressed)
	remotePath := RemotePath(u.creds.Directory, now, name)
	content := base64.StdEncoding.EncodeToString(data)

	report(string(StageUploading), 90)
	remote, err := u.repo.WriteFile(ctx, remotePath, content, commitMessage+name, "")
	if err != nil {
		return nil, err
	}

	report(string(StageGenerating), 95)
	branch := remote.Branch
	if branch == "" {
		branch = u.creds.Branch
	}
	url := u.rule.URL(u.creds.Owner, u.creds.Repo, branch, remotePath)
	u.logger.Info("image uploaded",
		zap.String("path", remotePath),
		zap.Int("original_size", len(f.Data)),
		zap.Int("final_size", len(data)),
		zap.Bool("compressed", compressed))

	report(string(StageCompleted), 100)
	return &Result{
		Success:      true,
		FileName:     name,
		Path:         remotePath,
		SHA:          remote.SHA,
		URL:          url,
		Markdown:     markdown.ImageMarkdown(baseName(f.Name), url),
		OriginalSize: len(f.Data),
		FinalSize:    len(data),
		Compressed:   compressed,
	}, nil
}

// UploadBatch uploads files one after another. A failed file produces a
// failure record and the batch moves on; the result has one entry per file.
func (u *Uploader) UploadBatch(ctx context.Context, files []File, progress ProgressFunc) []Result {
	results := make([]Result, 0, len(files))
	for i, f := range files {
		res, err := u.upload(ctx, f, i, len(files), progress)
		if err != nil {
			u.logger.Warn("image upload failed", zap.String("file", f.Name), zap.Error(err))
			results = append(results, Result{
				FileName:     f.Name,
				OriginalSize: len(f.Data),
				Error:        err.Error(),
				Kind:         errs.KindOf(err),
				Hint:         errs.HintFor(err),
			})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// keepRune reports whether r survives in a file name: ASCII letters and
// digits and Han characters.
func keepRune(r rune) bool {
	if r < utf8.RuneSelf {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	return unicode.Is(unicode.Han, r)
}

// FileName builds "{base}-{base36 ms}{suffix}{ext}". base keeps ASCII
// letters, digits and Han characters of the original name, at most 50, or
// "image". Re-encoded files
// always get ".jpg".
func FileName(original, mime string, now time.Time, suffix string, reencoded bool) string {
	var b strings.Builder
	n := 0
	for _, r := range baseName(original) {
		if n == maxBaseRunes {
			break
		}
		if keepRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	base := b.String()
	if base == "" {
		base = fallbackBase
	}

	ext := strings.ToLower(path.Ext(original))
	switch {
	case reencoded:
		ext = ".jpg"
	case !lo.Contains(imageExts, ext):
		ext = allowedTypes[mime]
	}
	return base + "-" + strconv.FormatInt(now.UnixMilli(), 36) + suffix + ext
}

// RemotePath buckets name under dir by year and month.
func RemotePath(dir string, now time.Time, name string) string {
	return path.Join(strings.Trim(dir, "/"), now.Format("2006"), now.Format("01"), name)
}

func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	return strings.TrimSuffix(name, path.Ext(name))
}

// Image is one stored image with its CDN link.
type Image struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// ListImages lists image files directly under the image directory, or under
// sub within it ("2024/03").
func (u *Uploader) ListImages(ctx context.Context, sub string) ([]Image, error) {
	dir, err := u.resolve(sub)
	if err != nil {
		return nil, err
	}
	entries, err := u.repo.ListDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}
	files := lo.Filter(entries, func(e github.Entry, _ int) bool {
		return e.Type != "dir" && lo.Contains(imageExts, strings.ToLower(path.Ext(e.Name)))
	})
	return lo.Map(files, func(e github.Entry, _ int) Image {
		url := u.rule.URL(u.creds.Owner, u.creds.Repo, u.creds.Branch, e.Path)
		return Image{
			Name:     e.Name,
			Path:     e.Path,
			SHA:      e.SHA,
			Size:     e.Size,
			URL:      url,
			Markdown: markdown.ImageMarkdown(baseName(e.Name), url),
		}
	}), nil
}

// DeleteImage removes the image at p, which must lie inside the image
// directory.
func (u *Uploader) DeleteImage(ctx context.Context, p, sha string) error {
	clean := strings.Trim(path.Clean("/"+strings.TrimSpace(p)), "/")
	if clean == "" || !strings.HasPrefix(clean+"/", u.creds.Directory+"/") || clean == u.creds.Directory {
		return errs.Newf(errs.ValidationFailed, "%q is not inside the image directory %s", p, u.creds.Directory).
			WithHint("pick an image from the listing")
	}
	if err := u.repo.DeleteFile(ctx, clean, sha, "Delete image: "+path.Base(clean)); err != nil {
		return err
	}
	u.logger.Info("image deleted", zap.String("path", clean))
	return nil
}

func (u *Uploader) resolve(sub string) (string, error) {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return u.creds.Directory, nil
	}
	for _, seg := range strings.Split(strings.Trim(sub, "/"), "/") {
		if seg == ".." {
			return "", errs.Newf(errs.ValidationFailed, "invalid image path %q", sub)
		}
	}
	return path.Join(u.creds.Directory, strings.Trim(sub, "/")), nil
}
