// internal/objectstore/supabase.go
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore uploads objects to Supabase Storage public buckets.
type SupabaseStore struct {
	client *storage_go.Client
}

func NewSupabaseStore(projectURL, apiKey string) *SupabaseStore {
	endpoint := strings.TrimRight(projectURL, "/") + "/storage/v1"
	return &SupabaseStore{
		client: storage_go.NewClient(endpoint, apiKey, nil),
	}
}

func (s *SupabaseStore) Put(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error) {
	if err := checkObject(bucket, objectPath, data); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	upsert := false
	if _, err := s.client.UploadFile(bucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("supabase upload %s/%s: %w", bucket, objectPath, err)
	}

	return s.client.GetPublicUrl(bucket, objectPath).SignedURL, nil
}
