// Package uploader delivers finished artifacts to an S3 bucket and hands
// back a shareable object URL.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader implements ports.FileDelivery. Credentials come from the
// default AWS chain (environment, shared config, instance role).
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
	region   string
	prefix   string
	logger   *slog.Logger
}

// NewS3Uploader builds an uploader on the default credential chain.
func NewS3Uploader(ctx context.Context, bucket, region, prefix string, logger *slog.Logger) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3UploaderWithClient(s3.NewFromConfig(cfg), bucket, region, prefix, logger), nil
}

// NewS3UploaderWithClient builds an uploader around an existing client.
// Useful for testing against a stub endpoint.
func NewS3UploaderWithClient(client *s3.Client, bucket, region, prefix string, logger *slog.Logger) *S3Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Uploader{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		region:   region,
		prefix:   prefix,
		logger:   logger.With("component", "uploader"),
	}
}

// Upload streams the file to the bucket. The object key is
// <prefix>/<run dir>/<filename> so every run's artifacts stay grouped.
func (u *S3Uploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	key := u.objectKey(path)
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFor(path)),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	url := out.Location
	if url == "" {
		url = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
	}
	u.logger.Info("Uploaded artifact", "key", key, "url", url)
	return url, nil
}

func (u *S3Uploader) objectKey(path string) string {
	parts := make([]string, 0, 3)
	if u.prefix != "" {
		parts = append(parts, strings.Trim(u.prefix, "/"))
	}
	if run := filepath.Base(filepath.Dir(path)); run != "." && run != "/" {
		parts = append(parts, run)
	}
	parts = append(parts, filepath.Base(path))
	return strings.Join(parts, "/")
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
