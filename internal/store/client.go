// Package store publishes finished datacubes and their reports to
// S3-compatible object storage.
package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

type Client struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
	logger   *zap.Logger
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Name         string
	Size         int64
	ModifiedTime time.Time
}

func NewClient(cfg map[string]string, logger *zap.Logger) (*Client, error) {
	useSSL := true
	if sslStr := cfg["use_ssl"]; sslStr != "" {
		if parsed, err := strconv.ParseBool(sslStr); err == nil {
			useSSL = parsed
		}
	}

	region := cfg["region"]
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg["access_key_id"],
			cfg["secret_access_key"],
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing keeps MinIO and other self-hosted stores working.
	endpoint := normalizeEndpoint(cfg["endpoint"], useSSL)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		s3Client: s3Client,
		bucket:   cfg["bucket"],
		prefix:   strings.Trim(cfg["prefix"], "/"),
		logger:   logger,
	}, nil
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// ObjectKey places name under prefix/run.
func ObjectKey(prefix, run, name string) string {
	return path.Join(prefix, run, name)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(c.prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to S3: %w", err)
	}
	return nil
}

// Upload stores the file at localPath under key.
func (c *Client) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, c.bucket, key, err)
	}
	c.logger.Debug("Uploaded object",
		zap.String("bucket", c.bucket),
		zap.String("key", key),
		zap.Int64("bytes", info.Size()))
	return nil
}

// Publish uploads files under prefix/run and returns their keys.
func (c *Client) Publish(ctx context.Context, run string, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := ObjectKey(c.prefix, run, filepath.Base(file))
		if err := c.Upload(ctx, file, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	c.logger.Info("Published run",
		zap.String("bucket", c.bucket),
		zap.String("run", run),
		zap.Int("objects", len(keys)))
	return keys, nil
}

// List returns the objects stored for run.
func (c *Client) List(ctx context.Context, run string) ([]ObjectInfo, error) {
	prefix := ObjectKey(c.prefix, run, "") + "/"

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			info := ObjectInfo{
				Key:  key,
				Name: path.Base(key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModifiedTime = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}
