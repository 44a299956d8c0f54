// Package gcs provides a State Store backed by a Google Cloud Storage object,
// for schedulers whose local disk does not survive between runs.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/threadwatch/internal/state"
)

// Config captures the bucket and object holding the record.
type Config struct {
	Bucket string
	Object string
}

// StateStore reads and writes the watermark record as a single object.
type StateStore struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed state store.
func New(client *storage.Client, cfg Config) (*StateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &StateStore{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
	}, nil
}

// Load downloads and decodes the record. A missing object is not an error.
func (s *StateStore) Load(ctx context.Context) (int, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer reader.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read gs://%s/%s: %w", s.bucket, s.object, err)
	}
	last, err := state.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("decode gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return last, nil
}

// Save uploads the record. Object writes are atomic: readers see either the
// previous generation or the new one.
func (s *StateStore) Save(ctx context.Context, last int) error {
	data, err := state.Encode(last)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
