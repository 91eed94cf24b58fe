package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Sink stores export artifacts as objects below a gs:// prefix. It satisfies
// export.Sink.
type Sink struct {
	storage StorageService
	bucket  string
	prefix  string
}

// NewSink returns a sink writing under prefix, e.g. gs://bucket/exports.
func NewSink(storage StorageService, prefix string) (*Sink, error) {
	bucket, object, err := ParseURI(prefix)
	if err != nil {
		return nil, fmt.Errorf("NewSink: %w", err)
	}
	return &Sink{storage: storage, bucket: bucket, prefix: strings.Trim(object, "/")}, nil
}

func (s *Sink) Write(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	object := strings.TrimPrefix(path.Join(s.prefix, name), "/")
	if err := s.storage.Upload(ctx, s.bucket, object, data); err != nil {
		return "", fmt.Errorf("Sink.Write: %w", err)
	}
	return scheme + s.bucket + "/" + object, nil
}
