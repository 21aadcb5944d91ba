package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/probe"
	"github.com/tendant/simple-publish/pkg/simplepublish/publisher"
	"github.com/tendant/simple-publish/pkg/simplepublish/repo/memory"
	repopg "github.com/tendant/simple-publish/pkg/simplepublish/repo/postgres"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
	fsstorage "github.com/tendant/simple-publish/pkg/simplepublish/storage/fs"
	memorystorage "github.com/tendant/simple-publish/pkg/simplepublish/storage/memory"
	s3storage "github.com/tendant/simple-publish/pkg/simplepublish/storage/s3"
	"github.com/tendant/simple-publish/pkg/simplepublish/thumbnail"
)

// DefaultThumbnailURLPrefix is where cmd/server exposes the thumbnail store.
const DefaultThumbnailURLPrefix = "/thumbnails"

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "publish",
		ThumbnailStorage: StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{"url_prefix": DefaultThumbnailURLPrefix},
		},
		PublishTimeout:     simplepublish.DefaultPublishTimeout,
		PublishConcurrency: simplepublish.DefaultPublishConcurrency,
		Publishers:         map[rules.Platform]publisher.Config{},
		DryRunPublishers:   true,
		EnableFFmpeg:       true,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-publish service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: publish)

	// ThumbnailStorage holds generated preview thumbnails. Type "none" disables thumbnails.
	ThumbnailStorage StorageBackendConfig

	// Publishing
	PublishTimeout     time.Duration
	PublishConcurrency int
	Publishers         map[rules.Platform]publisher.Config
	// DryRunPublishers registers the dry-run publisher for platforms without an endpoint.
	DryRunPublishers bool

	// CapabilityFile overrides the embedded capability table.
	CapabilityFile string

	// JWTSecret enables workspace-scoped bearer auth on the API when set.
	JWTSecret string

	EnableFFmpeg       bool
	EnableEventLogging bool

	thumbnailStore simplepublish.BlobStore
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Type   string // "none", "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.ThumbnailStorage.Type {
	case "none", "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported thumbnail storage type: %q", c.ThumbnailStorage.Type)
	}

	if c.PublishTimeout <= 0 {
		return errors.New("publish timeout must be positive")
	}
	if c.PublishConcurrency < 1 {
		return errors.New("publish concurrency must be at least 1")
	}

	for platform, pc := range c.Publishers {
		if !platform.IsValid() {
			return fmt.Errorf("publisher configured for %w %q", rules.ErrUnknownPlatform, platform)
		}
		if pc.Endpoint == "" {
			return fmt.Errorf("publisher endpoint is required for %s", platform)
		}
	}

	return nil
}

// JWTAuth returns the API token verifier, or nil when auth is disabled.
func (c *ServerConfig) JWTAuth() *jwtauth.JWTAuth {
	if c.JWTSecret == "" {
		return nil
	}
	return jwtauth.New("HS256", []byte(c.JWTSecret), nil)
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (simplepublish.Service, error) {
	var options []simplepublish.Option

	// Set up repository
	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, simplepublish.WithRepository(repo))

	table, err := c.buildCapabilityTable()
	if err != nil {
		return nil, err
	}
	options = append(options, simplepublish.WithCapabilityTable(table))

	// Media probing and thumbnails both shell out to ffmpeg
	if c.EnableFFmpeg {
		options = append(options, simplepublish.WithMediaAnalyzer(probe.New()))

		store, err := c.ThumbnailStore()
		if err != nil {
			return nil, err
		}
		if store != nil {
			options = append(options, simplepublish.WithThumbnailGenerator(thumbnail.New(store)))
		}
	}

	publishers, err := c.buildPublishers(ctx)
	if err != nil {
		return nil, err
	}
	for platform, p := range publishers {
		options = append(options, simplepublish.WithPublisher(platform, p))
	}

	if c.EnableEventLogging {
		options = append(options, simplepublish.WithEventSink(simplepublish.NewLoggingEventSink(slog.Default())))
	}

	options = append(options,
		simplepublish.WithPublishTimeout(c.PublishTimeout),
		simplepublish.WithPublishConcurrency(c.PublishConcurrency),
	)

	return simplepublish.New(options...)
}

// ThumbnailStore returns the thumbnail blob store, building it on first use so
// the service and the server share one instance. It is nil when thumbnails are disabled.
func (c *ServerConfig) ThumbnailStore() (simplepublish.BlobStore, error) {
	if c.ThumbnailStorage.Type == "none" {
		return nil, nil
	}
	if c.thumbnailStore == nil {
		store, err := c.buildStorageBackend(c.ThumbnailStorage)
		if err != nil {
			return nil, fmt.Errorf("failed to build thumbnail storage: %w", err)
		}
		c.thumbnailStore = store
	}
	return c.thumbnailStore, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplepublish.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the configured search_path.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	pool, err := newPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (c *ServerConfig) buildCapabilityTable() (*rules.Table, error) {
	if c.CapabilityFile == "" {
		return rules.Default(), nil
	}
	table, err := rules.LoadFile(c.CapabilityFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load capability file: %w", err)
	}
	return table, nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (simplepublish.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(memorystorage.WithURLPrefix(getString(config.Config, "url_prefix", ""))), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/thumbnails"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", 3600),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

// buildPublishers returns one Publisher per platform. Platforms without an
// endpoint get the dry-run publisher when DryRunPublishers is set.
func (c *ServerConfig) buildPublishers(ctx context.Context) (map[rules.Platform]simplepublish.Publisher, error) {
	out := make(map[rules.Platform]simplepublish.Publisher, len(rules.Platforms))
	for _, platform := range rules.Platforms {
		pc, ok := c.Publishers[platform]
		if !ok {
			if c.DryRunPublishers {
				out[platform] = publisher.NewDryRun(slog.Default())
			}
			continue
		}
		pc.Platform = platform
		p, err := publisher.NewHTTP(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s publisher: %w", platform, err)
		}
		out[platform] = p
	}
	return out, nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok && str != "" {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		if i, ok := value.(int); ok {
			return i
		}
		if str, ok := value.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
		if f, ok := value.(float64); ok {
			return int(f)
		}
	}
	return defaultValue
}
