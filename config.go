package stagehand

import (
	"time"

	"go.uber.org/zap"

	"github.com/eringen/stagehand/store"
)

// SiteConfig holds all configuration for a stagehand site.
type SiteConfig struct {
	Name        string // Site name (default "Stagehand")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for meta tags

	// Sections lists the editable sections in page order.
	Sections []string

	Addr string // Listen address (default ":3000")

	DatabaseDriver string // "sqlite" (default) or "postgres"
	DatabaseDSN    string // SQLite path or Postgres URL (default "data/stagehand.db")

	AdminPassword string // Required: plain text or a bcrypt hash
	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	// AllowedOrigins enables CORS on the editor API for a separately
	// hosted editor surface. Empty disables CORS.
	AllowedOrigins []string

	SectionCacheTTL time.Duration // Published section cache TTL (default 5min)
	StaticURLPrefix string        // URL the static dir is served under (default "/public")
}

var defaultSections = []string{"hero", "mission", "programs", "contact"}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Stagehand"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if len(c.Sections) == 0 {
		c.Sections = defaultSections
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabaseDriver == "" {
		c.DatabaseDriver = "sqlite"
	}
	if c.DatabaseDSN == "" {
		c.DatabaseDSN = "data/stagehand.db"
	}
	if c.SectionCacheTTL == 0 {
		c.SectionCacheTTL = 5 * time.Minute
	}
	if c.StaticURLPrefix == "" {
		c.StaticURLPrefix = "/public"
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for static assets and uploads (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger sets the logger (default: zap.NewNop).
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}

// WithStore uses db instead of opening one from the config. The App does not
// close a store it was given.
func WithStore(db *store.DB) Option {
	return func(a *App) {
		a.DB = db
		a.ownsStore = false
	}
}

// WithClock replaces time.Now for the editor, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
