// Package arya serves the image upload and markdown publish pipeline of a
// browser markdown editor. Images and documents end up in GitHub
// repositories through the Contents API; the editor shell talks to the JSON
// API mounted by App.
package arya

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/github"
	"github.com/eringen/arya/publish"
	"github.com/eringen/arya/upload"
)

// App wires the settings store, credential store, listing cache and the
// HTTP API together.
type App struct {
	Config      Config
	Echo        *echo.Echo
	Store       *Store
	Credentials *credentials.Store
	Cache       *ListingCache

	logger        *zap.Logger
	now           func() time.Time
	loginLimiter  *RateLimiter
	uploadLimiter *RateLimiter
	customRoutes  []func(*App)
	setupOnce     sync.Once
}

// New creates an App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Open initializes the database, credential store, cache and limiters, and
// seeds unconfigured targets from Config. It does not start listening.
func (a *App) Open() error {
	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("arya: init store: %w", err)
	}
	a.Store = store
	a.Credentials = credentials.NewStore(store, credentials.WithLogger(a.logger.Named("credentials")))
	a.Cache = NewListingCache(a.Config.ListingCacheSize, a.Config.ListingCacheTTL)
	a.loginLimiter = NewRateLimiter(a.Config.LoginAttempts, a.Config.LoginWindow)
	a.uploadLimiter = NewRateLimiter(a.Config.UploadRequests, a.Config.UploadWindow)

	a.seed(credentials.Content, a.Config.Content)
	image := a.Config.Image
	if image.Token == "" {
		image.Token = a.Config.Content.Token
	}
	if image.Owner == "" {
		image.Owner = a.Config.Content.Owner
	}
	if image.Repo == "" {
		image.Repo = a.Config.Content.Repo
	}
	a.seed(credentials.Image, image)
	if a.Config.LinkRule != "" {
		if raw, _ := a.Store.GetSetting(credentials.KeyLinkRule); raw == "" {
			if !a.Credentials.SetLinkRule(a.Config.LinkRule) {
				a.logger.Warn("ignoring configured link rule", zap.String("rule", a.Config.LinkRule))
			}
		}
	}
	return nil
}

func (a *App) seed(target credentials.Target, c credentials.Credentials) {
	if !c.Configured() || a.Credentials.IsConfigured(target) {
		return
	}
	if a.Credentials.Set(target, c) {
		a.logger.Info("seeded repository settings", zap.String("target", string(target)), zap.String("repo", c.FullName()))
	}
}

// Handler builds the middleware chain and routes on first use and returns
// the server handler. Open must have been called.
func (a *App) Handler() http.Handler {
	a.setupOnce.Do(func() {
		a.setupMiddleware()
		a.setupRoutes()
		for _, fn := range a.customRoutes {
			fn(a)
		}
	})
	return a.Echo
}

// Start opens the app and serves until the server is shut down.
func (a *App) Start() error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("arya: SessionSecret is required")
	}
	if a.Config.AdminPassword == "" && a.Config.APIKey == "" {
		return fmt.Errorf("arya: AdminPassword or APIKey is required")
	}
	if err := a.Open(); err != nil {
		return err
	}
	a.Handler()

	a.logger.Info("listening", zap.String("addr", a.Config.Addr))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	api := e.Group("/api")
	api.GET("/session", a.handleSession)
	api.POST("/login", a.handleLogin, limit(a.loginLimiter, "too many login attempts, try again later"))
	api.POST("/logout", handleLogout)

	auth := api.Group("", a.requireAuth)
	auth.GET("/config", a.handleGetConfig)
	auth.PUT("/config/link-rule", a.handleSetLinkRule)
	auth.PUT("/config/:target", a.handleSetConfig)
	auth.GET("/config/:target/check", a.handleCheck)
	auth.GET("/config/image/repository", a.handleCheckRepository)
	auth.POST("/config/image/repository", a.handleCreateRepository)

	auth.POST("/images", a.handleImageUpload, limit(a.uploadLimiter, "too many uploads, try again later"))
	auth.GET("/images", a.handleImageList)
	auth.DELETE("/images", a.handleImageDelete)

	auth.POST("/publish", a.handlePublish)
	auth.POST("/gallery", a.handleGallery)
	auth.GET("/posts", a.handlePosts)
	auth.GET("/history", a.handleHistory)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.uploadLimiter != nil {
		a.uploadLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// Client returns a GitHub client for target. A successful branch fallback
// is written back to the credential store.
func (a *App) Client(target credentials.Target) (*github.Client, error) {
	creds, err := a.Credentials.Require(target)
	if err != nil {
		return nil, err
	}
	policy := github.DefaultRetryPolicy()
	policy.Timeout = a.Config.RequestTimeout

	opts := []github.Option{
		github.WithRetryPolicy(policy),
		github.WithLogger(a.logger.Named("github")),
		github.WithBranchFallbackHook(func(from, to string) {
			creds.Branch = to
			if a.Credentials.Set(target, creds) {
				a.logger.Info("saved corrected branch",
					zap.String("target", string(target)), zap.String("from", from), zap.String("to", to))
			}
		}),
	}
	if a.Config.GitHubBaseURL != "" {
		opts = append(opts, github.WithBaseURL(a.Config.GitHubBaseURL))
	}
	return github.NewClient(creds, opts...)
}

// Uploader returns an uploader bound to the image repository.
func (a *App) Uploader() (*upload.Uploader, error) {
	client, err := a.Client(credentials.Image)
	if err != nil {
		return nil, err
	}
	return upload.New(client, client.Credentials(), a.Credentials.LinkRule(),
		upload.WithClock(a.now),
		upload.WithLogger(a.logger.Named("upload")),
	), nil
}

// Publisher returns a publisher bound to the content repository, with the
// client it writes through.
func (a *App) Publisher() (*publish.Publisher, *github.Client, error) {
	client, err := a.Client(credentials.Content)
	if err != nil {
		return nil, nil, err
	}
	return publish.New(client,
		publish.WithClock(a.now),
		publish.WithLogger(a.logger.Named("publish")),
	), client, nil
}
