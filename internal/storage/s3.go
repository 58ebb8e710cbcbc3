// Package storage uploads profile pictures to an S3-compatible bucket and
// hands back public URLs. The reconciliation engine never touches this
// transport; it only consumes the resulting URL as a patch value.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/smallbiznis/smallbiznis-users/internal/config"
)

const maxUploadBytes = 5 << 20

// ErrTooLarge rejects uploads above the 5 MB limit before any network call.
var ErrTooLarge = fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)

// S3Uploader stores binary objects and returns their public URLs.
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Uploader builds a client for the configured endpoint and credentials.
func NewS3Uploader(ctx context.Context, cfg config.Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	baseURL := cfg.S3PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}

	return &S3Uploader{client: client, bucket: cfg.S3Bucket, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload stores the object under a uuid-prefixed key and returns its public
// URL.
func (u *S3Uploader) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if len(data) > maxUploadBytes {
		return "", ErrTooLarge
	}

	key := fmt.Sprintf("%s-%s", uuid.New(), path.Base(filename))
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return fmt.Sprintf("%s/%s", u.baseURL, key), nil
}
