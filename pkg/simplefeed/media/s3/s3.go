package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/media/urlstrategy"
)

// Config options for the S3 gateway
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// PublicBaseURL, when set, is joined with the object key to form media
	// URLs. Otherwise media URLs live under URLPrefix and Handler redirects
	// each request to a presigned GET valid for PresignDuration.
	PublicBaseURL   string
	URLPrefix       string // Application path for media URLs (default: /media)
	PresignDuration int    // Duration in seconds for presigned URLs (default and maximum: 7 days)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// maxPresign is the longest expiry S3 accepts for SigV4 URLs.
const maxPresign = 7 * 24 * time.Hour

// Gateway is an S3-compatible implementation of simplefeed.MediaGateway
type Gateway struct {
	client          *s3.Client
	uploader        *manager.Uploader
	presignClient   *s3.PresignClient
	presignDuration time.Duration
	urls            urlstrategy.URLStrategy
	config          Config
}

// New creates a new S3-compatible media gateway
func New(ctx context.Context, config Config) (*Gateway, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	presign := time.Duration(config.PresignDuration) * time.Second
	if presign <= 0 || presign > maxPresign {
		presign = maxPresign
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	g := &Gateway{
		client:          client,
		uploader:        manager.NewUploader(client),
		presignClient:   s3.NewPresignClient(client),
		presignDuration: presign,
		urls:            urlstrategy.NewRecommended(config.PublicBaseURL, config.URLPrefix),
		config:          config,
	}

	if config.CreateBucketIfNotExist {
		if err := g.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return g, nil
}

var _ simplefeed.MediaGateway = (*Gateway)(nil)

func (g *Gateway) createBucketIfNotExists(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.config.Bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) && errorCode(err) != "NoSuchBucket" {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(g.config.Bucket)}
	if g.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(g.config.Region),
		}
	}

	if _, err := g.client.CreateBucket(ctx, input); err != nil {
		switch errorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload stores the media under opts.Key
func (g *Gateway) Upload(ctx context.Context, reader io.Reader, opts simplefeed.UploadOptions) (simplefeed.MediaRef, error) {
	if opts.Key == "" {
		return simplefeed.MediaRef{}, fmt.Errorf("%w: object key is required", simplefeed.ErrMediaRejected)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(g.config.Bucket),
		Key:         aws.String(opts.Key),
		Body:        reader,
		ContentType: aws.String(contentType(opts)),
	}
	g.applySSE(input)

	if _, err := g.uploader.Upload(ctx, input); err != nil {
		return simplefeed.MediaRef{}, classify("upload to S3", err)
	}

	url, err := g.urls.MediaURL(ctx, opts.Key)
	if err != nil {
		return simplefeed.MediaRef{}, err
	}
	return simplefeed.MediaRef{ExternalID: opts.Key, URL: url}, nil
}

// Delete removes the media. S3 deletes of missing keys succeed.
func (g *Gateway) Delete(ctx context.Context, externalID string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.config.Bucket),
		Key:    aws.String(externalID),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil
		}
		return classify("delete from S3", err)
	}
	return nil
}

func (g *Gateway) applySSE(input *s3.PutObjectInput) {
	if !g.config.EnableSSE {
		return
	}
	switch g.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if g.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(g.config.SSEKMSKeyID)
		}
	}
}

// PresignGet returns a temporary GET URL for key
func (g *Gateway) PresignGet(ctx context.Context, key string) (string, error) {
	result, err := g.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(g.config.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String("inline"),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = g.presignDuration
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return result.URL, nil
}

// ServesMedia reports whether media URLs point at the application, in which
// case Handler must be mounted under URLPrefix.
func (g *Gateway) ServesMedia() bool {
	_, ok := g.urls.(*urlstrategy.ContentBasedStrategy)
	return ok
}

// URLPrefix returns the path application media URLs start with
func (g *Gateway) URLPrefix() string {
	if cb, ok := g.urls.(*urlstrategy.ContentBasedStrategy); ok {
		return cb.Prefix
	}
	return ""
}

// Handler redirects media requests to freshly presigned object URLs.
func (g *Gateway) Handler() http.Handler {
	return urlstrategy.RedirectHandler(g.URLPrefix(), urlstrategy.NewStorageDelegatedStrategy(g))
}

func contentType(opts simplefeed.UploadOptions) string {
	if opts.MimeType != "" {
		return opts.MimeType
	}
	if opts.IsVideo {
		return "video/mp4"
	}
	return "application/octet-stream"
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// classify marks errors a retry cannot fix: client faults and most 4xx
// responses other than throttling and timeouts.
func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"NoSuchBucket", "InvalidBucketName", "EntityTooLarge", "InvalidArgument":
			return fmt.Errorf("%w: failed to %s: %w", simplefeed.ErrMediaRejected, op, err)
		}
		if apiErr.ErrorFault() == smithy.FaultClient && !retryableStatus(err) {
			return fmt.Errorf("%w: failed to %s: %w", simplefeed.ErrMediaRejected, op, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func retryableStatus(err error) bool {
	var respErr *smithyhttp.ResponseError
	if !errors.As(err, &respErr) {
		return true
	}
	switch respErr.HTTPStatusCode() {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return respErr.HTTPStatusCode() >= 500
}
