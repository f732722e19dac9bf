// internal/objectstore/store.go

// Package objectstore uploads capture artifacts (plate photos and depth
// summaries) and returns a URL they can later be fetched from.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	BucketMeals = "meals"
	BucketDepth = "depth-data"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	errInvalidPath  = errors.New("invalid object path")
)

// Store persists an object and returns its public URL.
type Store interface {
	Put(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error)
}

// ImagePath is the object path for a capture image.
func ImagePath(sessionID, frameID string, unix int64, ext string) string {
	return fmt.Sprintf("%s/%s_%d.%s", sessionID, frameID, unix, ext)
}

// DepthPath is the object path for a capture's depth summary.
func DepthPath(sessionID, frameID string, unix int64) string {
	return fmt.Sprintf("%s/%s_%d_depth.json", sessionID, frameID, unix)
}

func checkObject(bucket, objectPath string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	for _, p := range []string{bucket, objectPath} {
		if p == "" || strings.HasPrefix(p, "/") || path.Clean(p) != p {
			return fmt.Errorf("%w: %q", errInvalidPath, p)
		}
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return fmt.Errorf("%w: %q", errInvalidPath, p)
			}
		}
	}
	return nil
}
