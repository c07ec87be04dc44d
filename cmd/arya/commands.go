package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/arya"
	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/errs"
	"github.com/eringen/arya/markdown"
	"github.com/eringen/arya/publish"
	"github.com/eringen/arya/upload"
)

// version is set at build time via ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the arya version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arya %s\n", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the editor API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			v.Set("addr", addr)
		}
		app := arya.New(appConfig(), arya.WithLogger(logger))
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- app.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.Shutdown(shutdownCtx)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload images and print their markdown",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		files := make([]upload.File, 0, len(args))
		for _, name := range args {
			data, err := os.ReadFile(name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			files = append(files, upload.File{Name: filepath.Base(name), Data: data})
		}

		results, err := app.UploadImages(cmd.Context(), files, func(p upload.Progress) {
			logger.Debug("progress", zap.String("file", p.File), zap.String("stage", p.Stage), zap.Int("percent", p.Percent))
		})
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if r.Success {
				fmt.Fprintln(cmd.OutOrStdout(), r.Markdown)
				continue
			}
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n  hint: %s\n", r.FileName, r.Error, r.Hint)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(results))
		}
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish FILE",
	Short: "Publish a markdown file to the content repository",
	Long: `Publish a markdown file. Front matter already in the file becomes the
document metadata. For --type gallery the "url" field, or else the first
remote image in the body, is published as a gallery entry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")
		ct, err := publish.ParseContentType(kind)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		meta, body, err := publish.ParseDocument(string(raw))
		if err != nil {
			return err
		}
		if title, _ := cmd.Flags().GetString("title"); title != "" {
			meta.Set("title", title)
		}

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		var res *publish.Result
		if ct == publish.Gallery {
			url := strings.TrimSpace(meta.String("url"))
			if url == "" {
				url = markdown.FirstImageURL(body)
			}
			var date time.Time
			if d, ok := meta.Get("date"); ok {
				if t, ok := d.(time.Time); ok {
					date = t
				}
			}
			res, err = app.PublishGallery(cmd.Context(), url, date)
		} else {
			res, err = app.Publish(cmd.Context(), publish.Request{Type: ct, Metadata: meta, Body: body})
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", res.Action, res.FilePath, res.HTMLURL)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:       "check [content|image]",
	Short:     "Test token and repository access",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(credentials.Content), string(credentials.Image)},
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := []credentials.Target{credentials.Content, credentials.Image}
		if len(args) == 1 {
			t, err := credentials.ParseTarget(args[0])
			if err != nil {
				return err
			}
			targets = []credentials.Target{t}
		}

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		var failed []string
		out := cmd.OutOrStdout()
		for _, t := range targets {
			report, err := app.CheckAccess(cmd.Context(), t)
			if err != nil {
				failed = append(failed, string(t))
				fmt.Fprintf(out, "%s: %v\n  hint: %s\n", t, err, errs.HintFor(err))
				continue
			}
			if !report.HasWriteAccess {
				failed = append(failed, string(t))
				fmt.Fprintf(out, "%s: %s\n  hint: %s\n", t, report.Problem, report.Hint)
				continue
			}
			fmt.Fprintf(out, "%s: %s as %s (default branch %s)\n", t, report.RepoFullName, report.User, report.DefaultBranch)
		}
		if len(failed) > 0 {
			return fmt.Errorf("access check failed for %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	publishCmd.Flags().String("type", string(publish.Blog), "content type: blog, essay, general or gallery")
	publishCmd.Flags().String("title", "", "override the title")
}
