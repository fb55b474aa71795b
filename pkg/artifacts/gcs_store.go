//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSConfig locates the bucket.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSStore keeps blobs as GCS objects.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(hexSum string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(objectKey(s.prefix, hexSum))
}

// Put uploads unless the object is already present.
func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	digest, hexSum := Digest(data)
	obj := s.object(hexSum)
	if _, err := obj.Attrs(ctx); err == nil {
		return digest, nil
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/cbor"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", digest, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", digest, err)
	}
	return digest, nil
}

// Get downloads a blob.
func (s *GCSStore) Get(ctx context.Context, digest string) ([]byte, error) {
	hexSum, err := parseDigest(digest)
	if err != nil {
		return nil, err
	}
	r, err := s.object(hexSum).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get %s: %w", digest, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Exists reads object attributes.
func (s *GCSStore) Exists(ctx context.Context, digest string) (bool, error) {
	hexSum, err := parseDigest(digest)
	if err != nil {
		return false, err
	}
	_, err = s.object(hexSum).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs %s: %w", digest, err)
	}
	return true, nil
}

// Close releases the client.
func (s *GCSStore) Close() error { return s.client.Close() }
