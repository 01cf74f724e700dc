package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

const episodeContentType = "audio/mpeg"

// objectStore is the slice of a bucket the publisher needs.
type objectStore interface {
	// Size returns the size of the object, or exists=false when it is absent.
	Size(ctx context.Context, key string) (size int64, exists bool, err error)
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
}

type gcsBucket struct {
	bucket *storage.BucketHandle
}

func (b gcsBucket) Size(ctx context.Context, key string) (int64, bool, error) {
	attrs, err := b.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return attrs.Size, true, nil
}

func (b gcsBucket) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return w.Close()
}

type GCSPublisher struct {
	client  *storage.Client
	objects objectStore
	bucket  string
	prefix  string
}

type PublishResult struct {
	Uploaded int
	Existing int
}

func NewGCSPublisher(ctx context.Context, bucket, prefix string) (*GCSPublisher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	publisher := newPublisher(gcsBucket{bucket: client.Bucket(bucket)}, bucket, prefix)
	publisher.client = client
	return publisher, nil
}

func newPublisher(objects objectStore, bucket, prefix string) *GCSPublisher {
	return &GCSPublisher{
		objects: objects,
		bucket:  bucket,
		prefix:  prefix,
	}
}

func (p *GCSPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Publish uploads every episode whose object is missing or has a different
// size than the local file.
func (p *GCSPublisher) Publish(ctx context.Context, episodes []string) (PublishResult, error) {
	var result PublishResult
	for _, localPath := range episodes {
		key := ObjectKey(p.prefix, localPath)

		size, exists, err := p.objects.Size(ctx, key)
		if err != nil {
			return result, fmt.Errorf("failed to stat gs://%s/%s: %w", p.bucket, key, err)
		}
		if exists && size == FileSize(localPath) {
			result.Existing++
			continue
		}

		if err := p.uploadFile(ctx, key, localPath); err != nil {
			return result, fmt.Errorf("failed to upload %s: %w", localPath, err)
		}

		slog.Info("Published episode", "object", fmt.Sprintf("gs://%s/%s", p.bucket, key))
		result.Uploaded++
	}

	return result, nil
}

func (p *GCSPublisher) uploadFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return p.objects.Upload(ctx, key, f, episodeContentType)
}

// ObjectKey maps a local episode file to its object name under prefix.
func ObjectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
