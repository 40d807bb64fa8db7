// Package blob uploads user media (chat images, avatars) to the
// S3-compatible object store and resolves their public URLs.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minhbui/trovia/internal/config"
)

// Uploader wraps the AWS SDK v2 S3 client for the media bucket.
type Uploader struct {
	api        *s3.Client
	bucket     string
	publicBase string
}

// New builds an Uploader from the storage section of the config file.
func New(cfg config.Storage) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint not configured")
	}
	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &Uploader{api: api, bucket: cfg.Bucket, publicBase: cfg.PublicBase}, nil
}

// ChatImageKey builds the object key for a chat image upload. Prefixing the
// sender id and a timestamp keeps keys unique without coordination.
func ChatImageKey(userID, fileName string) string {
	return fmt.Sprintf("chat/%s_%d_%s", userID, time.Now().UnixMilli(), path.Base(fileName))
}

// AvatarKey builds the object key for a profile avatar upload.
func AvatarKey(userID, fileName string) string {
	return fmt.Sprintf("avatars/%s_%d_%s", userID, time.Now().UnixMilli(), path.Base(fileName))
}

// Upload stores an object and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &u.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: &size,
		ContentType:   &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return u.PublicURL(key), nil
}

// PublicURL resolves an object key to its public download URL.
func (u *Uploader) PublicURL(key string) string {
	base := strings.TrimRight(u.publicBase, "/")
	return base + "/" + key
}
