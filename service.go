package arya

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/github"
	"github.com/eringen/arya/publish"
	"github.com/eringen/arya/upload"
)

// UploadImages uploads files to the image repository one after another and
// records every outcome. Per-file failures are in the results; the error is
// only set when the image repository cannot be used at all.
func (a *App) UploadImages(ctx context.Context, files []upload.File, progress upload.ProgressFunc) ([]upload.Result, error) {
	u, err := a.Uploader()
	if err != nil {
		return nil, err
	}
	results := u.UploadBatch(ctx, files, progress)
	for _, r := range results {
		a.remember(HistoryEntry{Kind: HistoryUpload, Name: r.FileName, Path: r.Path, URL: r.URL, Success: r.Success, Error: r.Error})
	}
	a.logger.Info("upload batch finished",
		zap.Int("files", len(results)),
		zap.Int("failed", lo.CountBy(results, func(r upload.Result) bool { return !r.Success })))
	return results, nil
}

// DeleteImage removes an uploaded image and records the outcome.
func (a *App) DeleteImage(ctx context.Context, path, sha string) error {
	u, err := a.Uploader()
	if err != nil {
		return err
	}
	err = u.DeleteImage(ctx, path, sha)
	entry := HistoryEntry{Kind: HistoryDelete, Name: path, Path: path, Success: err == nil}
	if err != nil {
		entry.Error = err.Error()
	}
	a.remember(entry)
	return err
}

// Publish writes a document to the content repository, records the outcome
// and drops the cached listing of its directory.
func (a *App) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	pub, client, err := a.Publisher()
	if err != nil {
		return nil, err
	}
	name := req.Metadata.Title()
	if name == "" {
		name = "Untitled"
	}
	res, err := pub.Publish(ctx, req)
	a.rememberPublish(HistoryPublish, name, res, err)
	if err != nil {
		return nil, err
	}
	if ct, perr := publish.ParseContentType(string(req.Type)); perr == nil {
		a.Cache.Invalidate(client.Credentials().FullName(), res.Branch, ct)
	}
	return res, nil
}

// PublishGallery stores imageURL as a gallery entry.
func (a *App) PublishGallery(ctx context.Context, imageURL string, date time.Time) (*publish.Result, error) {
	pub, client, err := a.Publisher()
	if err != nil {
		return nil, err
	}
	res, err := pub.PublishGallery(ctx, imageURL, date)
	a.rememberPublish(HistoryGallery, imageURL, res, err)
	if err != nil {
		return nil, err
	}
	a.Cache.Invalidate(client.Credentials().FullName(), res.Branch, publish.Gallery)
	return res, nil
}

// ListPublished returns the cached listing of the directory of ct.
func (a *App) ListPublished(ctx context.Context, ct publish.ContentType) ([]publish.Document, error) {
	pub, client, err := a.Publisher()
	if err != nil {
		return nil, err
	}
	creds := client.Credentials()
	return a.Cache.Get(creds.FullName(), creds.Branch, ct, func() ([]publish.Document, error) {
		return pub.ListPublished(ctx, ct)
	})
}

// CheckAccess runs the access test against the repository of target.
func (a *App) CheckAccess(ctx context.Context, target credentials.Target) (*github.AccessReport, error) {
	client, err := a.Client(target)
	if err != nil {
		return nil, err
	}
	return client.TestAccess(ctx)
}

func (a *App) rememberPublish(kind HistoryKind, name string, res *publish.Result, err error) {
	entry := HistoryEntry{Kind: kind, Name: name, Success: err == nil}
	if err != nil {
		entry.Error = err.Error()
	} else if res != nil {
		entry.Path = res.FilePath
		entry.URL = res.HTMLURL
	}
	a.remember(entry)
}

// remember stores e. History failures are logged only.
func (a *App) remember(e HistoryEntry) {
	if _, err := a.Store.RecordHistory(e); err != nil {
		a.logger.Error("record history", zap.Error(err))
	}
}
