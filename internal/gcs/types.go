package gcs

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload writes data to a storage bucket under the given object name.
	// The object only becomes visible once the upload is finalized.
	Upload(ctx context.Context, bucketName, objectName string, data []byte) error

	// FetchFromGCS downloads object bytes from the given storage URI. A missing
	// object yields an error wrapping domain.ErrSourceMissing.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// List returns the object names below the given storage URI prefix.
	List(ctx context.Context, gcsPrefix string) ([]string, error)
}
