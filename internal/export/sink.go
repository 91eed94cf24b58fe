package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink stores a finished artifact and returns where it ended up. Write must
// not leave a partial artifact visible under name on failure.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes artifacts below Dir through a temp file and rename.
type FileSink struct {
	Dir string
}

func (s FileSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("FileSink.Write: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".export-*")
	if err != nil {
		return "", fmt.Errorf("FileSink.Write: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("FileSink.Write: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("FileSink.Write: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("FileSink.Write: close: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("FileSink.Write: rename: %w", err)
	}
	return dst, nil
}
