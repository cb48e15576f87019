// Package pagekit is a small content-management backend for a single-page
// marketing site, built with Go and Echo.
//
// It authenticates one admin account with signed bearer tokens, stores a
// single PageData document (in MongoDB, or SQLite when no MONGO_URI is
// set), and accepts, compresses, lists, and deletes uploaded service images.
package pagekit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// App is the central pagekit application. It wires together the store,
// authenticator, image library, handlers, and middleware.
type App struct {
	Config Config
	Echo   *echo.Echo
	Store  PageStore
	Auth   *Authenticator
	Pages  *PageService
	Images *ImageLibrary

	log         *zap.Logger
	mirror      Mirror
	now         func() time.Time
	initialized bool
}

// New creates a pagekit App. Nothing is opened until Init or Start.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		now:    time.Now,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init validates the configuration, connects the page store, and
// registers middleware and routes. A store that cannot be reached is
// returned as an error; callers treat that as fatal.
func (a *App) Init(ctx context.Context) error {
	if a.initialized {
		return nil
	}
	if err := a.Config.Validate(); err != nil {
		return err
	}

	if a.log == nil {
		log, err := NewLogger(a.Config.LogLevel, a.Config.LogFormat)
		if err != nil {
			return err
		}
		a.log = log
	}

	if a.Store == nil {
		store, err := openStore(ctx, a.Config)
		if err != nil {
			return fmt.Errorf("pagekit: init store: %w", err)
		}
		a.Store = store
	}

	if a.mirror == nil && a.Config.S3Bucket != "" {
		mirror, err := NewS3Mirror(ctx, a.Config, a.log)
		if err != nil {
			return fmt.Errorf("pagekit: init upload mirror: %w", err)
		}
		a.mirror = mirror
	}

	images, err := NewImageLibrary(a.Config.UploadDir, a.Config.MaxUploadSize, a.mirror, a.log)
	if err != nil {
		return fmt.Errorf("pagekit: %w", err)
	}
	images.now = a.now
	a.Images = images

	a.Auth = NewAuthenticator(a.Config.AdminUsername, a.Config.AdminPassword, a.Config.JWTSecret, a.Config.TokenTTL, a.now)
	a.Pages = NewPageService(a.Store, a.log, a.now)

	a.setupMiddleware()
	a.setupRoutes()

	a.log.Info("pagekit initialized",
		zap.String("store", storeName(a.Config)),
		zap.String("upload_dir", a.Config.UploadDir),
		zap.Bool("public_base_url", a.Config.PublicBaseURL != ""),
		zap.Bool("upload_mirror", a.mirror != nil))

	a.initialized = true
	return nil
}

// Start initializes the App if needed and serves HTTP until the server is shut down.
func (a *App) Start() error {
	if err := a.Init(context.Background()); err != nil {
		return err
	}
	a.log.Info("server listening", zap.String("addr", a.Config.Addr))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo
	admin := a.Auth.RequireAdmin

	e.Static(uploadsURLPrefix, a.Config.UploadDir)

	e.GET("/api/health", a.handleHealth)

	e.POST("/api/auth/login", a.handleLogin)
	e.GET("/api/auth/verify", a.handleVerify, admin)

	e.POST("/api/services/upload", a.handleImageUpload, admin)
	e.GET("/api/services/images", a.handleImageList, admin)
	e.DELETE("/api/services/images/:filename", a.handleImageDelete, admin)

	e.GET("/api/content/page-data", a.handlePageData)
	e.GET("/content/page-data", a.handlePageData)
	e.POST("/api/content/page-data", a.handlePageDataSave, admin)
}

// Shutdown stops the HTTP server and closes the page store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if a.Store != nil {
		if cerr := a.Store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

func openStore(ctx context.Context, cfg Config) (PageStore, error) {
	if cfg.MongoURI != "" {
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	}
	return NewSQLiteStore(cfg.DatabasePath)
}

func storeName(cfg Config) string {
	if cfg.MongoURI != "" {
		return "mongodb"
	}
	return "sqlite"
}
