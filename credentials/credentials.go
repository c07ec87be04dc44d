// Package credentials persists the repository coordinates for the two
// publishing targets (content and images) and the selected CDN link rule.
package credentials

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/eringen/arya/cdn"
	"github.com/eringen/arya/errs"
)

// Storage keys. Callers go through Store; these are exported so the
// persisted layout is part of the package contract.
const (
	KeyContentRepo = "github-config"
	KeyImageRepo   = "image-service-config"
	KeyLinkRule    = "image-service-link-rule"
)

const (
	DefaultBranch    = "main"
	DefaultDirectory = "images"
)

// Target selects which repository a credential set belongs to.
type Target string

const (
	Content Target = "content"
	Image   Target = "image"
)

// ParseTarget accepts "content" or "image".
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case Content:
		return Content, nil
	case Image:
		return Image, nil
	}
	return "", errs.Newf(errs.ValidationFailed, "unknown target %q", s).
		WithHint(`target must be "content" or "image"`)
}

func (t Target) key() string {
	if t == Image {
		return KeyImageRepo
	}
	return KeyContentRepo
}

// Credentials are the coordinates of one repository.
type Credentials struct {
	Token     string `json:"token" validate:"required"`
	Owner     string `json:"owner" validate:"required"`
	Repo      string `json:"repo" validate:"required"`
	Branch    string `json:"branch,omitempty"`
	Directory string `json:"imageDir,omitempty"`
}

// Configured reports whether token, owner and repo are all present.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.Token) != "" &&
		strings.TrimSpace(c.Owner) != "" &&
		strings.TrimSpace(c.Repo) != ""
}

// FullName returns "owner/repo".
func (c Credentials) FullName() string {
	return c.Owner + "/" + c.Repo
}

// Normalize trims every field and fills the branch and directory defaults.
func (c Credentials) Normalize() Credentials {
	c.Token = strings.TrimSpace(c.Token)
	c.Owner = strings.TrimSpace(c.Owner)
	c.Repo = strings.TrimSpace(c.Repo)
	c.Branch = strings.TrimSpace(c.Branch)
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	c.Directory = strings.Trim(strings.TrimSpace(c.Directory), "/")
	if c.Directory == "" {
		c.Directory = DefaultDirectory
	}
	return c
}

// Backend is durable key/value storage. GetSetting returns "" for a key
// that was never written.
type Backend interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Store reads and writes credentials through a Backend. Each target is set
// independently and always replaced as a whole.
type Store struct {
	backend  Backend
	logger   *zap.Logger
	validate *validator.Validate
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report storage failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store on top of backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate returns a ValidationFailed error naming the first missing field.
func (s *Store) Validate(c Credentials) error {
	c = c.Normalize()
	if err := s.validate.Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
		}
		return errs.Newf(errs.ValidationFailed, "missing %s", strings.Join(fields, ", ")).
			WithHint("token, owner and repo are required")
	}
	return nil
}

// Set validates, normalizes and persists c for target. It reports false
// instead of failing when validation or the backend write fails.
func (s *Store) Set(target Target, c Credentials) bool {
	if err := s.Validate(c); err != nil {
		s.logger.Warn("credentials rejected", zap.String("target", string(target)), zap.Error(err))
		return false
	}
	raw, err := json.Marshal(c.Normalize())
	if err != nil {
		s.logger.Error("encode credentials", zap.Error(err))
		return false
	}
	if err := s.backend.SetSetting(target.key(), string(raw)); err != nil {
		s.logger.Error("persist credentials", zap.String("target", string(target)), zap.Error(err))
		return false
	}
	return true
}

// Get returns the stored credentials for target, or nil when never configured.
func (s *Store) Get(target Target) *Credentials {
	raw, err := s.backend.GetSetting(target.key())
	if err != nil {
		s.logger.Error("read credentials", zap.String("target", string(target)), zap.Error(err))
		return nil
	}
	if raw == "" {
		return nil
	}
	var c Credentials
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.logger.Warn("discarding unreadable credentials", zap.String("target", string(target)), zap.Error(err))
		return nil
	}
	c = c.Normalize()
	return &c
}

// IsConfigured reports whether target has usable credentials.
func (s *Store) IsConfigured(target Target) bool {
	c := s.Get(target)
	return c != nil && c.Configured()
}

// Require returns the credentials for target or a ConfigurationMissing error.
func (s *Store) Require(target Target) (Credentials, error) {
	c := s.Get(target)
	if c == nil || !c.Configured() {
		return Credentials{}, errs.Newf(errs.ConfigurationMissing, "%s repository is not configured", target)
	}
	return *c, nil
}

// SetLinkRule stores the selected rule id. Unknown ids are rejected.
func (s *Store) SetLinkRule(id string) bool {
	rule, ok := cdn.Lookup(id)
	if !ok {
		s.logger.Warn("unknown link rule", zap.String("rule", id))
		return false
	}
	if err := s.backend.SetSetting(KeyLinkRule, string(rule.ID)); err != nil {
		s.logger.Error("persist link rule", zap.Error(err))
		return false
	}
	return true
}

// LinkRule returns the selected rule, falling back to the default rule.
func (s *Store) LinkRule() cdn.Rule {
	raw, err := s.backend.GetSetting(KeyLinkRule)
	if err != nil {
		s.logger.Error("read link rule", zap.Error(err))
		return cdn.Default()
	}
	if rule, ok := cdn.Lookup(raw); ok {
		return rule
	}
	return cdn.Default()
}

// MemoryBackend is a Backend held in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
	// FailWrites makes every SetSetting fail; used to simulate a full disk.
	FailWrites bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) GetSetting(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryBackend) SetSetting(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return fmt.Errorf("write %s: storage quota exceeded", key)
	}
	m.values[key] = value
	return nil
}
