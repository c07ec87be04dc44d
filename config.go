package arya

import (
	"time"

	"go.uber.org/zap"

	"github.com/eringen/arya/credentials"
)

// Config holds all configuration for an arya server.
type Config struct {
	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/arya.db")

	AdminPassword string // Required for session login
	SessionSecret string // Required: session encryption secret
	APIKey        string // Optional bearer key for non-browser clients
	CookieSecure  bool   // Set true for HTTPS

	GitHubBaseURL  string        // API root (default https://api.github.com)
	RequestTimeout time.Duration // Per-request GitHub timeout (default 30s)

	ListingCacheTTL  time.Duration // Published listing TTL (default 2min)
	ListingCacheSize int           // Cached directories (default 64)

	LoginAttempts  int           // Login attempts per window (default 5)
	LoginWindow    time.Duration // default 1min
	UploadRequests int           // Upload calls per window (default 30)
	UploadWindow   time.Duration // default 1min

	MaxUploadMemory int64 // Multipart memory before spilling to disk (default 32MB)

	// Seed credentials applied at startup when a target is not configured yet.
	Content  credentials.Credentials
	Image    credentials.Credentials
	LinkRule string
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/arya.db"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ListingCacheTTL == 0 {
		c.ListingCacheTTL = 2 * time.Minute
	}
	if c.ListingCacheSize == 0 {
		c.ListingCacheSize = 64
	}
	if c.LoginAttempts == 0 {
		c.LoginAttempts = 5
	}
	if c.LoginWindow == 0 {
		c.LoginWindow = time.Minute
	}
	if c.UploadRequests == 0 {
		c.UploadRequests = 30
	}
	if c.UploadWindow == 0 {
		c.UploadWindow = time.Minute
	}
	if c.MaxUploadMemory == 0 {
		c.MaxUploadMemory = 32 << 20
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger sets the logger shared by the server and every service.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCustomRoutes registers additional routes on the Echo instance.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithClock overrides the time source used for file names and paths.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}
