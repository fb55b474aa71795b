//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func openGCS(context.Context, string, string) (BlobStore, error) {
	return nil, fmt.Errorf("GCS artifacts are not enabled in this build (use -tags gcp)")
}
