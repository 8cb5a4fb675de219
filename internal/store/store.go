package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// Store persists finished build artifacts and hands out expiring download
// URLs for them. storedPath is the backend-independent object key.
type Store interface {
	Upload(ctx context.Context, localPath, storedPath string) error
	DownloadURL(ctx context.Context, storedPath, downloadName string, expiresIn time.Duration) (string, error)
	Exists(ctx context.Context, storedPath string) (bool, error)
	Copy(ctx context.Context, srcPath, dstPath string) error
	Delete(ctx context.Context, storedPath string) error
}

// ArtifactPath is the canonical object key for a build artifact.
func ArtifactPath(appID, buildID, ext string) string {
	return fmt.Sprintf("artifacts/%s/%s%s", appID, buildID, ext)
}
