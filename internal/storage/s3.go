package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// MirrorPrefix is the key prefix for mirrored greeting images.
const MirrorPrefix = "wishes/"

// objectPutter is the subset of the S3 client used by Client.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client wraps S3 storage operations
type Client struct {
	s3Client  objectPutter
	bucket    string
	publicURL string // optional base URL for public bucket (e.g. http://localhost:9000/wishes)
}

// NewClient creates a new S3 storage client
func NewClient(endpoint, region, bucket, accessKey, secretKey, publicURL string) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" {
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	// Add custom endpoint if provided (for MinIO/LocalStack)
	if endpoint != "" {
		configOpts = append(configOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for MinIO; checksums only when required for R2-like backends.
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	log.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Msg("S3 client initialized")

	return &Client{
		s3Client:  s3Client,
		bucket:    bucket,
		publicURL: publicURL,
	}, nil
}

// PublicURL returns the public URL for an object key. Empty if publicURL was not configured.
func (c *Client) PublicURL(key string) string {
	if c.publicURL == "" {
		return ""
	}
	if c.publicURL[len(c.publicURL)-1] == '/' {
		return c.publicURL + key
	}
	return c.publicURL + "/" + key
}

// Upload uploads data to S3. contentLength must be > 0; S3-compatible backends (e.g. R2) require the Content-Length header.
func (c *Client) Upload(ctx context.Context, key string, data io.Reader, contentType string, contentLength int64) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(contentLength),
	}
	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().
		Str("bucket", c.bucket).
		Str("key", key).
		Msg("File uploaded to S3")

	return nil
}

// MirrorImage uploads a saved JPEG under MirrorPrefix and returns its public URL (may be empty).
func (c *Client) MirrorImage(ctx context.Context, fileName string, data io.Reader, size int64) (string, error) {
	key := MirrorPrefix + fileName
	if err := c.Upload(ctx, key, data, "image/jpeg", size); err != nil {
		return "", err
	}
	return c.PublicURL(key), nil
}
