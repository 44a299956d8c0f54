// Package runid generates identifiers that correlate the log lines, metrics
// and published events of one check run.
package runid

import (
	"github.com/google/uuid"
)

// New returns a UUIDv7 string, time-ordered so run IDs sort by start time.
// It falls back to a random v4 ID if the v7 generator fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
