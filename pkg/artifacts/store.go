// Package artifacts archives run bundles in content-addressed storage on
// the local filesystem, S3 or GCS.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/macterra/Axio-sub003/pkg/canonicalize"
)

// ErrNotFound is returned for a digest with no stored blob.
var ErrNotFound = errors.New("artifact not found")

// BlobStore is content-addressed storage keyed by "sha256:<hex>".
type BlobStore interface {
	// Put stores data and returns its digest. Storing the same bytes twice
	// is a no-op.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the blob for digest.
	Get(ctx context.Context, digest string) ([]byte, error)
	// Exists reports whether digest is stored.
	Exists(ctx context.Context, digest string) (bool, error)
}

// Digest returns the prefixed SHA-256 digest of data and its bare hex.
func Digest(data []byte) (prefixed, hexSum string) {
	sum := sha256.Sum256(data)
	hexSum = hex.EncodeToString(sum[:])
	return canonicalize.DigestPrefix + hexSum, hexSum
}

// parseDigest validates a prefixed digest and returns its hex part.
func parseDigest(digest string) (string, error) {
	raw, ok := strings.CutPrefix(digest, canonicalize.DigestPrefix)
	if !ok {
		return "", fmt.Errorf("invalid digest format: %s", digest)
	}
	if b, err := hex.DecodeString(raw); err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("invalid digest hex: %s", digest)
	}
	return raw, nil
}

// objectKey is the backend key for a digest's hex.
func objectKey(prefix, hexSum string) string { return prefix + hexSum + ".cbor" }

// FileStore keeps blobs as files under one directory.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	//nolint:gosec // G301: archive directory is shared with readers
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes through a temp file and rename.
func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest, hexSum := Digest(data)
	path := filepath.Join(s.dir, objectKey("", hexSum))
	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}
	tmp := path + ".tmp"
	//nolint:gosec // G306: bundles are not secret
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return digest, nil
}

// Get reads a blob.
func (s *FileStore) Get(_ context.Context, digest string) ([]byte, error) {
	hexSum, err := parseDigest(digest)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.dir, objectKey("", hexSum))) //nolint:gosec // digest validated as hex
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", digest, err)
	}
	return data, nil
}

// Exists stats a blob.
func (s *FileStore) Exists(_ context.Context, digest string) (bool, error) {
	hexSum, err := parseDigest(digest)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = os.Stat(filepath.Join(s.dir, objectKey("", hexSum)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob %s: %w", digest, err)
	}
}
