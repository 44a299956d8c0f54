package watch

import (
	"context"
	"time"
)

// StateStore persists the watermark.
//
// Load returns (0, nil) when no record exists yet. A record that exists but
// cannot be decoded yields an error wrapping ErrMalformedState; the Detector
// recovers from it by treating the watermark as 0.
type StateStore interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, last int) error
}

// Fetcher retrieves the thread resource, following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Extractor finds the highest reply index in a page body.
type Extractor interface {
	Extract(markup string) Extraction
}

// Notifier delivers a one-line message and reports the HTTP status only.
type Notifier interface {
	Notify(ctx context.Context, message string) (int, error)
}

// Publisher fans out change events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) (string, error)
}

// Recorder observes run outcomes (Prometheus in production).
type Recorder interface {
	ObserveFetch(status int, redirects int, duration time.Duration)
	ObserveRun(outcome string, current int)
	ObserveNotification(webhookStatus int)
}

// Hasher computes digests of fetched bodies.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
