// Package source reads the materialized pipeline inputs from a local
// directory or a gs:// prefix.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/gcs"
	"github.com/dvloznov/basket-export/internal/logger"
)

// Input file names below the source location.
const (
	RawRecordsFile   = "raw_records.jsonl"
	InteractionsFile = "interactions.jsonl"
	TaxonomyFile     = "taxonomy.csv"
	StoresFile       = "stores.csv"
)

const maxLineSize = 16 << 20

// ErrMalformedInput is returned when an input file cannot be decoded.
var ErrMalformedInput = errors.New("malformed input")

// Reader fetches one named input. A missing input yields an error wrapping
// domain.ErrSourceMissing.
type Reader interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// DirReader reads inputs from a local directory.
type DirReader struct {
	Dir string
}

func (r DirReader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(r.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("DirReader.ReadFile: %s: %w", name, domain.ErrSourceMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("DirReader.ReadFile: %w", err)
	}
	return data, nil
}

// GCSReader reads inputs from objects below a gs:// prefix.
type GCSReader struct {
	Storage gcs.StorageService
	Prefix  string
}

func (r GCSReader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	data, err := r.Storage.FetchFromGCS(ctx, gcs.JoinURI(r.Prefix, name))
	if err != nil {
		return nil, fmt.Errorf("GCSReader.ReadFile: %w", err)
	}
	return data, nil
}

// FileSource implements pipeline.Source over JSONL and CSV files.
type FileSource struct {
	reader   Reader
	location string
}

// New returns a FileSource reading through r. location is only used in logs.
func New(r Reader, location string) *FileSource {
	return &FileSource{reader: r, location: location}
}

// Open picks a reader for location: gs:// URIs go through storage, anything
// else is treated as a local directory.
func Open(location string, storage gcs.StorageService) (*FileSource, error) {
	if gcs.IsURI(location) {
		if storage == nil {
			return nil, fmt.Errorf("Open: %s needs a storage service", location)
		}
		if _, _, err := gcs.ParseURI(location); err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return New(GCSReader{Storage: storage, Prefix: location}, location), nil
	}
	return New(DirReader{Dir: location}, location), nil
}

func (s *FileSource) ListRawRecords(ctx context.Context) ([]domain.RawTransactionRecord, error) {
	var out []domain.RawTransactionRecord
	err := s.readJSONL(ctx, RawRecordsFile, func() any {
		out = append(out, domain.RawTransactionRecord{})
		return &out[len(out)-1]
	})
	if err != nil {
		return nil, fmt.Errorf("ListRawRecords: %w", err)
	}
	s.logLoaded(ctx, RawRecordsFile, len(out))
	return out, nil
}

func (s *FileSource) ListInteractions(ctx context.Context) ([]domain.Interaction, error) {
	var out []domain.Interaction
	err := s.readJSONL(ctx, InteractionsFile, func() any {
		out = append(out, domain.Interaction{})
		return &out[len(out)-1]
	})
	if err != nil {
		return nil, fmt.Errorf("ListInteractions: %w", err)
	}
	s.logLoaded(ctx, InteractionsFile, len(out))
	return out, nil
}

// readJSONL decodes every non-blank line into the value returned by next.
func (s *FileSource) readJSONL(ctx context.Context, name string, next func() any) error {
	data, err := s.reader.ReadFile(ctx, name)
	if err != nil {
		return err
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := json.Unmarshal(b, next()); err != nil {
			return fmt.Errorf("%s line %d: %v: %w", name, line, err, ErrMalformedInput)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: scan: %w", name, err)
	}
	return nil
}

func (s *FileSource) logLoaded(ctx context.Context, name string, n int) {
	log := logger.FromContext(ctx)
	log.Debug().
		Str("location", s.location).
		Str("file", name).
		Int("count", n).
		Msg("Loaded input")
}
