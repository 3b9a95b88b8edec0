package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	fsmedia "github.com/tendant/simple-feed/pkg/simplefeed/media/fs"
	memorymedia "github.com/tendant/simple-feed/pkg/simplefeed/media/memory"
	s3media "github.com/tendant/simple-feed/pkg/simplefeed/media/s3"
	"github.com/tendant/simple-feed/pkg/simplefeed/repo/memory"
	repomongo "github.com/tendant/simple-feed/pkg/simplefeed/repo/mongo"
	repopg "github.com/tendant/simple-feed/pkg/simplefeed/repo/postgres"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

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

// defaults must agree with the env-default tags below.
func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8080",
		Environment:   "development",
		APIMount:      "/api/posts",
		DatabaseType:  "memory",
		DBSchema:      "public",
		MongoDatabase: "simplefeed",
		MediaBackend:  "memory",
		FS: FilesystemConfig{
			BaseDir:   "./data/media",
			URLPrefix: "/media",
		},
		S3: S3Config{
			Region:          "us-east-1",
			URLPrefix:       "/media",
			PresignDuration: 3600,
			SSEAlgorithm:    "AES256",
		},
		MediaRetryMaxTries: 3,
		FeedDefaultLimit:   simplefeed.DefaultPageSize,
	}
}

// ServerConfig represents server configuration for the simple-feed service
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing
	APIMount    string `env:"API_MOUNT" env-default:"/api/posts"`

	// Database configuration
	DatabaseType  string `env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres", "mongo"
	DatabaseURL   string `env:"DATABASE_URL"`
	DBSchema      string `env:"DB_SCHEMA" env-default:"public"` // Postgres search_path
	MongoDatabase string `env:"MONGO_DATABASE" env-default:"simplefeed"`

	// Media configuration
	MediaBackend string `env:"MEDIA_BACKEND" env-default:"memory"` // "memory", "fs", "s3"
	FS           FilesystemConfig
	S3           S3Config

	// Service behaviour
	MediaRetryMaxTries uint `env:"MEDIA_RETRY_MAX_TRIES" env-default:"3"`
	StrictMediaDelete  bool `env:"STRICT_MEDIA_DELETE" env-default:"false"`
	FeedDefaultLimit   int  `env:"FEED_DEFAULT_LIMIT" env-default:"5"`

	// Identity and telemetry
	JWTSecret    string `env:"JWT_SECRET"`
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// FilesystemConfig configures the filesystem media backend
type FilesystemConfig struct {
	BaseDir   string `env:"FS_BASE_DIR" env-default:"./data/media"`
	URLPrefix string `env:"FS_URL_PREFIX" env-default:"/media"`
}

// S3Config configures the S3 media backend
type S3Config struct {
	Bucket                 string `env:"S3_BUCKET"`
	Region                 string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint               string `env:"S3_ENDPOINT"`
	AccessKeyID            string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey        string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle           bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	PublicBaseURL          string `env:"S3_PUBLIC_BASE_URL"`
	URLPrefix              string `env:"S3_URL_PREFIX" env-default:"/media"`     // redirect route when no public base URL
	PresignDuration        int    `env:"S3_PRESIGN_DURATION" env-default:"3600"` // seconds, per redirect
	EnableSSE              bool   `env:"S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm           string `env:"S3_SSE_ALGORITHM" env-default:"AES256"` // AES256 or aws:kms
	SSEKMSKeyID            string `env:"S3_SSE_KMS_KEY_ID"`
	CreateBucketIfNotExist bool   `env:"S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres", "mongo":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'mongo'")
	}

	switch c.MediaBackend {
	case "memory":
	case "fs":
		if c.FS.BaseDir == "" {
			return errors.New("fs base directory is required when using fs media")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3 media")
		}
		if c.S3.EnableSSE && c.S3.SSEAlgorithm != "AES256" && c.S3.SSEAlgorithm != "aws:kms" {
			return errors.New("s3 sse algorithm must be 'AES256' or 'aws:kms'")
		}
	default:
		return errors.New("media_backend must be 'memory', 'fs' or 's3'")
	}

	if c.MediaRetryMaxTries == 0 {
		return errors.New("media retry max tries must be at least 1")
	}
	if c.FeedDefaultLimit < 1 || c.FeedDefaultLimit > simplefeed.MaxPageSize {
		return fmt.Errorf("feed default limit must be between 1 and %d", simplefeed.MaxPageSize)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required in production")
		}
		if c.DatabaseType == "memory" || c.MediaBackend == "memory" {
			return errors.New("production requires a persistent database and media backend")
		}
	}

	return nil
}

// BuildService creates a Service from the server configuration. The
// returned function releases database pools and clients and must be called
// once the service is no longer used.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...simplefeed.Option) (simplefeed.Service, func(), error) {
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	gateway, err := c.buildMediaGateway(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build media gateway: %w", err)
	}

	retry := simplefeed.DefaultRetryPolicy()
	retry.MaxTries = c.MediaRetryMaxTries

	options := []simplefeed.Option{
		simplefeed.WithRepository(repo),
		simplefeed.WithMediaGateway(gateway),
		simplefeed.WithMediaRetry(retry),
		simplefeed.WithStrictMediaDelete(c.StrictMediaDelete),
		simplefeed.WithDefaultPageSize(c.FeedDefaultLimit),
	}
	if c.Environment != "testing" {
		options = append(options, simplefeed.WithEventSink(simplefeed.NewLoggingEventSink(nil)))
	}
	options = append(options, extra...)

	svc, err := simplefeed.New(options...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

// MediaHandler returns the handler behind application media URLs and the
// path it should be mounted under: stored files for the fs backend, presign
// redirects for s3 without a public base URL. ok is false otherwise.
func (c *ServerConfig) MediaHandler(ctx context.Context) (prefix string, handler http.Handler, ok bool, err error) {
	switch c.MediaBackend {
	case "fs":
		gw, err := c.filesystemGateway()
		if err != nil {
			return "", nil, false, err
		}
		return gw.URLPrefix(), gw.Handler(), true, nil
	case "s3":
		gw, err := c.s3Gateway(ctx)
		if err != nil {
			return "", nil, false, err
		}
		if !gw.ServesMedia() {
			return "", nil, false, nil
		}
		return gw.URLPrefix(), gw.Handler(), true, nil
	}
	return "", nil, false, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplefeed.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil

	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		repo := repopg.NewWithPool(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		return repo, pool.Close, nil

	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(c.DatabaseURL))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		disconnect := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				slog.Warn("mongo disconnect failed", "err", err)
			}
		}
		repo := repomongo.New(client.Database(c.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		return repo, disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// newPool opens a pgx pool whose sessions use schema as search_path.
func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
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

// PingPostgres verifies connectivity to Postgres with the given search_path.
// It fails if the schema (when provided) does not exist.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
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

// buildMediaGateway creates the MediaGateway named by MediaBackend
func (c *ServerConfig) buildMediaGateway(ctx context.Context) (simplefeed.MediaGateway, error) {
	switch c.MediaBackend {
	case "memory":
		return memorymedia.New(), nil
	case "fs":
		gw, err := c.filesystemGateway()
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "s3":
		gw, err := c.s3Gateway(ctx)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported media backend: %s", c.MediaBackend)
	}
}

func (c *ServerConfig) filesystemGateway() (*fsmedia.Gateway, error) {
	return fsmedia.New(fsmedia.Config{
		BaseDir:   c.FS.BaseDir,
		URLPrefix: c.FS.URLPrefix,
	})
}

func (c *ServerConfig) s3Gateway(ctx context.Context) (*s3media.Gateway, error) {
	return s3media.New(ctx, s3media.Config{
		Region:                 c.S3.Region,
		Bucket:                 c.S3.Bucket,
		AccessKeyID:            c.S3.AccessKeyID,
		SecretAccessKey:        c.S3.SecretAccessKey,
		Endpoint:               c.S3.Endpoint,
		UsePathStyle:           c.S3.UsePathStyle,
		PublicBaseURL:          c.S3.PublicBaseURL,
		URLPrefix:              c.S3.URLPrefix,
		PresignDuration:        c.S3.PresignDuration,
		EnableSSE:              c.S3.EnableSSE,
		SSEAlgorithm:           c.S3.SSEAlgorithm,
		SSEKMSKeyID:            c.S3.SSEKMSKeyID,
		CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
	})
}
