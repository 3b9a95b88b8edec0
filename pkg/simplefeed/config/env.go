package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads configuration from environment variables.
//
// Every field of ServerConfig with an env tag is read; unset variables fall
// back to their env-default. Apply WithEnv before programmatic options so
// they take precedence over the environment.
//
// Server:
//
//	PORT, ENVIRONMENT, API_MOUNT
//
// Database:
//
//	DATABASE_TYPE - memory, postgres or mongo
//	DATABASE_URL, DB_SCHEMA, MONGO_DATABASE
//
// Media:
//
//	MEDIA_BACKEND - memory, fs or s3
//	FS_BASE_DIR, FS_URL_PREFIX
//	S3_BUCKET, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY,
//	S3_USE_PATH_STYLE, S3_PUBLIC_BASE_URL, S3_PRESIGN_DURATION,
//	S3_CREATE_BUCKET_IF_NOT_EXIST
//
// Behaviour:
//
//	MEDIA_RETRY_MAX_TRIES, STRICT_MEDIA_DELETE, FEED_DEFAULT_LIMIT,
//	JWT_SECRET, OTEL_ENDPOINT
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// Usage returns a description of the supported environment variables.
func Usage() string {
	var cfg ServerConfig
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}
