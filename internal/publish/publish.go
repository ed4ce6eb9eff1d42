// File: internal/publish/publish.go
// Brief: S3 artifact uploads (single objects and directory trees).

// Package publish uploads build artifacts to S3, one object per file.
// Uploads are single PutObject calls with no retry and no multipart
// handling; the first failure propagates to the caller.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// PutObjectAPI is the minimal S3 surface the publisher needs, allowing
// injection of a fake client in tests.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads local files into S3 buckets.
type Publisher struct {
	client PutObjectAPI
	log    *zap.Logger
}

// New returns a Publisher backed by the given client.
func New(client PutObjectAPI, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, log: log}
}

// UploadFile uploads the file at localPath to s3://bucket/key.
func (p *Publisher) UploadFile(ctx context.Context, localPath, bucket, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// UploadDirectory uploads every file under localRoot into bucket, deriving
// each object key from the file's path relative to localRoot with forward
// slashes. The walk aborts on the first failed upload.
func (p *Publisher) UploadDirectory(ctx context.Context, localRoot, bucket string) error {
	return filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localRoot, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		key := filepath.ToSlash(rel)
		if err := p.UploadFile(ctx, path, bucket, key); err != nil {
			return err
		}
		p.log.Info("uploaded static file",
			zap.String("bucket", bucket),
			zap.String("key", key))
		return nil
	})
}
