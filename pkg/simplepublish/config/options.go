package config

import (
	"fmt"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish/publisher"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryThumbnailStorage keeps thumbnails in process memory. cmd/server
// serves them under DefaultThumbnailURLPrefix.
func WithMemoryThumbnailStorage() Option {
	return func(c *ServerConfig) error {
		c.ThumbnailStorage = StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{"url_prefix": DefaultThumbnailURLPrefix},
		}
		return nil
	}
}

// WithoutThumbnails disables thumbnail generation
func WithoutThumbnails() Option {
	return func(c *ServerConfig) error {
		c.ThumbnailStorage = StorageBackendConfig{Type: "none", Config: map[string]interface{}{}}
		return nil
	}
}

// WithFilesystemThumbnailStorage stores thumbnails under baseDir.
// urlPrefix is the public base URL the files are served from.
func WithFilesystemThumbnailStorage(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		backend := StorageBackendConfig{
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir": baseDir,
			},
		}
		if urlPrefix != "" {
			backend.Config["url_prefix"] = urlPrefix
		}
		c.ThumbnailStorage = backend
		return nil
	}
}

// S3Options holds the optional S3 settings
type S3Options struct {
	Region                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	PresignDuration        int
	EnableSSE              bool
	SSEAlgorithm           string
	SSEKMSKeyID            string
	CreateBucketIfNotExist bool
}

// WithS3ThumbnailStorage stores thumbnails in an S3 bucket
func WithS3ThumbnailStorage(bucket string, opts S3Options) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket name cannot be empty")
		}
		backend := StorageBackendConfig{
			Type: "s3",
			Config: map[string]interface{}{
				"bucket":                     bucket,
				"use_path_style":             opts.UsePathStyle,
				"enable_sse":                 opts.EnableSSE,
				"create_bucket_if_not_exist": opts.CreateBucketIfNotExist,
			},
		}
		setIfNotEmpty(backend.Config, "region", opts.Region)
		setIfNotEmpty(backend.Config, "access_key_id", opts.AccessKeyID)
		setIfNotEmpty(backend.Config, "secret_access_key", opts.SecretAccessKey)
		setIfNotEmpty(backend.Config, "endpoint", opts.Endpoint)
		setIfNotEmpty(backend.Config, "sse_algorithm", opts.SSEAlgorithm)
		setIfNotEmpty(backend.Config, "sse_kms_key_id", opts.SSEKMSKeyID)
		if opts.PresignDuration > 0 {
			backend.Config["presign_duration"] = opts.PresignDuration
		}
		c.ThumbnailStorage = backend
		return nil
	}
}

func setIfNotEmpty(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// WithPublishTimeout bounds each publisher call
func WithPublishTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("publish timeout must be positive, got: %s", d)
		}
		c.PublishTimeout = d
		return nil
	}
}

// WithPublishConcurrency sets how many accounts are published in parallel
func WithPublishConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		if n < 1 {
			return fmt.Errorf("publish concurrency must be at least 1, got: %d", n)
		}
		c.PublishConcurrency = n
		return nil
	}
}

// WithCapabilityFile loads the capability table from a YAML file instead of the embedded one
func WithCapabilityFile(path string) Option {
	return func(c *ServerConfig) error {
		c.CapabilityFile = path
		return nil
	}
}

// WithPublisher configures the HTTP publisher for one platform
func WithPublisher(cfg publisher.Config) Option {
	return func(c *ServerConfig) error {
		platform, err := rules.ParsePlatform(string(cfg.Platform))
		if err != nil {
			return err
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("publisher endpoint is required for %s", platform)
		}
		cfg.Platform = platform
		if c.Publishers == nil {
			c.Publishers = map[rules.Platform]publisher.Config{}
		}
		c.Publishers[platform] = cfg
		return nil
	}
}

// WithDryRunPublishers toggles the dry-run fallback for unconfigured platforms
func WithDryRunPublishers(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.DryRunPublishers = enabled
		return nil
	}
}

// WithJWTSecret enables HS256 bearer auth scoped by the workspace_id claim
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithFFmpeg toggles ffmpeg-backed media probing and thumbnails
func WithFFmpeg(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableFFmpeg = enabled
		return nil
	}
}

// WithEventLogging toggles the slog event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
