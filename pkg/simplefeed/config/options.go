package config

import (
	"fmt"

	"github.com/tendant/simple-feed/pkg/simplefeed"
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
		switch dbType {
		case "memory":
		case "postgres", "mongo":
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'mongo', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres search_path
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMongo selects the mongo repository using the given database name
func WithMongo(url, database string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("mongo URL cannot be empty")
		}
		c.DatabaseType = "mongo"
		c.DatabaseURL = url
		if database != "" {
			c.MongoDatabase = database
		}
		return nil
	}
}

// WithFilesystemMedia stores media under baseDir, served at urlPrefix
func WithFilesystemMedia(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.MediaBackend = "fs"
		c.FS.BaseDir = baseDir
		if urlPrefix != "" {
			c.FS.URLPrefix = urlPrefix
		}
		return nil
	}
}

// WithS3Media stores media in an S3 bucket
func WithS3Media(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = c.S3.Region
		}
		if s3.PresignDuration == 0 {
			s3.PresignDuration = c.S3.PresignDuration
		}
		if s3.URLPrefix == "" {
			s3.URLPrefix = c.S3.URLPrefix
		}
		if s3.SSEAlgorithm == "" {
			s3.SSEAlgorithm = c.S3.SSEAlgorithm
		}
		c.MediaBackend = "s3"
		c.S3 = s3
		return nil
	}
}

// WithMediaRetry sets how many times a media call is attempted
func WithMediaRetry(maxTries uint) Option {
	return func(c *ServerConfig) error {
		if maxTries == 0 {
			return fmt.Errorf("media retry max tries must be at least 1")
		}
		c.MediaRetryMaxTries = maxTries
		return nil
	}
}

// WithStrictMediaDelete keeps records whose media cannot be deleted
func WithStrictMediaDelete(strict bool) Option {
	return func(c *ServerConfig) error {
		c.StrictMediaDelete = strict
		return nil
	}
}

// WithFeedDefaultLimit sets the page size used when a request gives none
func WithFeedDefaultLimit(limit int) Option {
	return func(c *ServerConfig) error {
		if limit < 1 || limit > simplefeed.MaxPageSize {
			return fmt.Errorf("feed default limit must be between 1 and %d, got: %d", simplefeed.MaxPageSize, limit)
		}
		c.FeedDefaultLimit = limit
		return nil
	}
}

// WithJWTSecret sets the HS256 secret used to verify bearer tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithOTELEndpoint sets the OTLP/HTTP endpoint spans are exported to
func WithOTELEndpoint(endpoint string) Option {
	return func(c *ServerConfig) error {
		c.OTELEndpoint = endpoint
		return nil
	}
}
