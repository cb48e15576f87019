package pagekit

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for a pagekit server.
type Config struct {
	Addr          string // Listen address (default ":5001")
	PublicBaseURL string // Overrides the request-derived base URL for uploads

	JWTSecret     string        // Required: token signing secret
	AdminUsername string        // Required: admin login name
	AdminPassword string        // Required: admin login password
	TokenTTL      time.Duration // Token validity window (default 24h)

	MongoURI        string // Remote document store; SQLite is used when empty
	MongoDatabase   string // default "pagekit"
	MongoCollection string // default "pagedatas"
	DatabasePath    string // SQLite path (default "data/pagekit.db")

	UploadDir     string // default "uploads"
	MaxUploadSize int64  // default 10 MiB
	BodyLimit     string // echo body limit for JSON payloads (default "50M")

	AllowedOrigins []string // CORS origins

	S3Bucket          string // Upload mirror; disabled when empty
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string

	LogLevel  string // debug, info, warn, error (default "info")
	LogFormat string // json or console (default "json")
}

// defaultOrigins are the front-ends allowed to call the API cross-origin.
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5500",
	"http://127.0.0.1:5500",
	"https://ninamulti.netlify.app",
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":5001"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "pagekit"
	}
	if c.MongoCollection == "" {
		c.MongoCollection = "pagedatas"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/pagekit.db"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = 10 << 20
	}
	if c.BodyLimit == "" {
		c.BodyLimit = "50M"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = defaultOrigins
	}
	if c.S3Region == "" {
		c.S3Region = "us-east-1"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return validationError("pagekit: JWT_SECRET is required")
	case c.AdminUsername == "":
		return validationError("pagekit: ADMIN_USERNAME is required")
	case c.AdminPassword == "":
		return validationError("pagekit: ADMIN_PASSWORD is required")
	}
	return nil
}

// LoadConfig builds a Config from environment variables.
func LoadConfig() Config {
	v := viper.New()
	v.SetDefault("PORT", "5001")
	v.SetDefault("DATABASE_PATH", "data/pagekit.db")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("MONGO_DATABASE", "pagekit")
	v.SetDefault("MONGO_COLLECTION", "pagedatas")
	v.SetDefault("MAX_UPLOAD_SIZE", 10<<20)
	v.SetDefault("BODY_LIMIT", "50M")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.AutomaticEnv()

	// ALLOWED_ORIGINS is comma separated; viper only splits on spaces.
	var origins []string
	if raw := v.GetString("ALLOWED_ORIGINS"); raw != "" {
		origins = FilterEmpty(strings.Split(raw, ","))
	}

	cfg := Config{
		Addr:              ":" + v.GetString("PORT"),
		PublicBaseURL:     v.GetString("PUBLIC_BASE_URL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		AdminUsername:     v.GetString("ADMIN_USERNAME"),
		AdminPassword:     v.GetString("ADMIN_PASSWORD"),
		TokenTTL:          v.GetDuration("TOKEN_TTL"),
		MongoURI:          v.GetString("MONGO_URI"),
		MongoDatabase:     v.GetString("MONGO_DATABASE"),
		MongoCollection:   v.GetString("MONGO_COLLECTION"),
		DatabasePath:      v.GetString("DATABASE_PATH"),
		UploadDir:         v.GetString("UPLOAD_DIR"),
		MaxUploadSize:     v.GetInt64("MAX_UPLOAD_SIZE"),
		BodyLimit:         v.GetString("BODY_LIMIT"),
		AllowedOrigins:    origins,
		S3Bucket:          v.GetString("S3_BUCKET"),
		S3Endpoint:        v.GetString("S3_ENDPOINT"),
		S3Region:          v.GetString("S3_REGION"),
		S3AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		S3Prefix:          v.GetString("S3_PREFIX"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
	}
	cfg.setDefaults()
	return cfg
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger replaces the logger built from Config.LogLevel/LogFormat.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// WithStore injects a PageStore instead of opening one from Config.
// The App takes ownership and closes it on Shutdown.
func WithStore(s PageStore) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithMirror injects an upload mirror instead of building one from the S3 settings.
func WithMirror(m Mirror) Option {
	return func(a *App) {
		a.mirror = m
	}
}

// WithClock overrides time.Now, mainly for token expiry tests.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
