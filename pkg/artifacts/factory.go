package artifacts

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Open selects a backend from a location:
//
//   - a plain path or file://dir for the filesystem
//   - s3://bucket/prefix for S3 (region from AWS_REGION, endpoint from AKI_S3_ENDPOINT)
//   - gs://bucket/prefix for GCS (builds with -tags gcp only)
func Open(ctx context.Context, location string) (BlobStore, error) {
	if !strings.Contains(location, "://") {
		return NewFileStore(location)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact location %q: %w", location, err)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	switch u.Scheme {
	case "file":
		return NewFileStore(u.Host + u.Path)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("s3 location %q has no bucket", location)
		}
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{Bucket: u.Host, Region: region, Endpoint: os.Getenv("AKI_S3_ENDPOINT"), Prefix: prefix})
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("gs location %q has no bucket", location)
		}
		return openGCS(ctx, u.Host, prefix)
	default:
		return nil, fmt.Errorf("unsupported artifact scheme %q", u.Scheme)
	}
}
