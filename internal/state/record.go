// Package state encodes the persisted watermark record.
//
// The on-disk shape is {"last": <integer>} pretty-printed with two-space
// indentation. Every State Store backend reads and writes this exact shape so
// records stay portable between backends and prior runs.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

// Record is the persisted watermark.
type Record struct {
	Last *int `json:"last"`
}

// Encode renders the record for n.
func Encode(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("watermark must be >= 0, got %d", n)
	}
	data, err := json.MarshalIndent(Record{Last: &n}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state record: %w", err)
	}
	return data, nil
}

// Decode parses a record. A missing or null "last" field decodes to 0.
// Anything else that is not a non-negative integer wraps watch.ErrMalformedState.
func Decode(data []byte) (int, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return 0, fmt.Errorf("%w: empty record", watch.ErrMalformedState)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("%w: %v", watch.ErrMalformedState, err)
	}
	if rec.Last == nil {
		return 0, nil
	}
	if *rec.Last < 0 {
		return 0, fmt.Errorf("%w: negative watermark %d", watch.ErrMalformedState, *rec.Last)
	}
	return *rec.Last, nil
}
