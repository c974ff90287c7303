// Package stagehand is the backend of a small organisation's marketing site
// and its visual editor. Every editable section keeps a staging and a
// published value for its layout, text and image; the admin edits staging
// through a JSON API and publishes everything in one sweep, while visitors
// only ever see published values.
//
// Applications provide their own templ components via the ViewFuncs struct
// (views.Default covers the basics); stagehand handles the handlers,
// middleware and persistence.
package stagehand

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/stagehand/editor"
	"github.com/eringen/stagehand/objectstore"
	"github.com/eringen/stagehand/store"
	"github.com/eringen/stagehand/views"
)

// ViewFuncs holds the templ components the app renders pages with.
type ViewFuncs struct {
	Home        func(site views.SiteConfig, sections []views.Section) templ.Component
	AdminLogin  func(site views.SiteConfig, showError bool, csrfToken string) templ.Component
	AdminEditor func(site views.SiteConfig, sections []views.Section, pending []string, layouts []string, csrfToken string) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// DefaultViews returns the components from the views package.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:        views.Home,
		AdminLogin:  views.AdminLogin,
		AdminEditor: views.AdminEditor,
		NotFound:    views.NotFound,
		ServerError: views.ServerError,
	}
}

// App is the central stagehand application. It wires together the store,
// editor, cache, handlers, middleware and templates.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	DB      *store.DB
	Editor  *editor.Editor
	Objects *objectstore.Local
	Cache   *SectionCache
	Views   ViewFuncs
	Log     *zap.Logger

	loginLimiter *LoginLimiter
	customRoutes []func(*App)
	staticDir    string
	ownsStore    bool
	now          func() time.Time
	heartbeat    time.Duration
	ready        bool
}

// New creates an App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		Log:       zap.NewNop(),
		staticDir: "public",
		ownsStore: true,
		now:       time.Now,
		heartbeat: 25 * time.Second,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init opens the store, builds the editor and registers middleware and
// routes. Start calls it; tests call it directly and drive a.Echo.
func (a *App) Init() error {
	if a.ready {
		return nil
	}
	if a.Config.AdminPassword == "" {
		return errors.New("stagehand: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return errors.New("stagehand: SessionSecret is required")
	}

	if a.DB == nil {
		db, err := store.Open(a.Config.DatabaseDriver, a.Config.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("stagehand: init store: %w", err)
		}
		a.DB = db
	}

	a.Objects = objectstore.NewLocal(a.staticDir, a.Config.StaticURLPrefix)
	a.Editor = editor.New(a.DB, a.Objects,
		editor.WithLogger(a.Log.Named("editor")),
		editor.WithClock(a.now))
	a.Cache = NewSectionCache(a.Config.Sections, a.Config.SectionCacheTTL, func(ctx context.Context, section string) (SectionSnapshot, error) {
		return a.snapshot(ctx, section, editor.Published)
	})
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start initializes the app and serves until the server fails.
func (a *App) Start() error {
	return a.Run(context.Background())
}

// Run initializes the app and serves until ctx is cancelled, then shuts the
// server down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Init(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		a.Log.Info("listening", zap.String("addr", a.Config.Addr))
		errc <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stagehand: shutdown: %w", err)
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Editor script shipped with the package; everything else under /public
	// comes from the static dir.
	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := http.FileServer(http.FS(embeddedFS))
	e.GET("/public/editor.js", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))

	e.Static(a.Config.StaticURLPrefix, a.staticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)

	// Public routes
	e.GET("/", a.handleHome)
	e.GET("/api/sections/:section", a.handleSectionSnapshot)

	// Admin pages
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	// Editor API
	api := e.Group("/admin/api", requireAdmin)
	api.GET("/sections/:section/layout", a.handleGetLayout)
	api.PUT("/sections/:section/layout", a.handleSetLayout)
	api.POST("/sections/:section/layout/publish", a.handlePublishLayout)
	api.GET("/sections/:section/content", a.handleGetContent)
	api.PUT("/sections/:section/content/:key", a.handleSetContent)
	api.POST("/sections/:section/content/publish", a.handlePublishContent)
	api.GET("/sections/:section/images", a.handleSectionImages)
	api.PUT("/sections/:section/image", a.handleSelectImage)
	api.GET("/images", a.handleImageLibrary)
	api.POST("/images", a.handleImageUpload)
	api.DELETE("/images/:id", a.handleImageDelete)
	api.POST("/images/cleanup", a.handleImageCleanup)
	api.GET("/unpublished", a.handleUnpublished)
	api.POST("/publish", a.handlePublishAll)
	api.GET("/events", a.handleEvents)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.DB != nil && a.ownsStore {
		return a.DB.Close()
	}
	return nil
}
