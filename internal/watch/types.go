package watch

import "time"

// RunStatus names the terminal state of a run.
type RunStatus string

// Terminal run states.
const (
	StatusNotified  RunStatus = "notified"
	StatusUnchanged RunStatus = "unchanged"
)

// FetchResult is the final response of a fetch after redirects.
type FetchResult struct {
	StatusCode int
	FinalURL   string
	Body       string
	Redirects  int
}

// Extraction is the outcome of scanning one body. Index is 0 when Found is
// false, which is indistinguishable from a thread without replies.
type Extraction struct {
	Index int
	Tier  string
	Found bool
}

// Outcome summarizes a completed run.
type Outcome struct {
	Status        RunStatus
	Previous      int
	Current       int
	Delta         int
	WebhookStatus int
	FinalURL      string
	Tier          string
}

// ChangeEvent is published after a new watermark is persisted.
type ChangeEvent struct {
	RunID      string    `json:"run_id"`
	SourceURL  string    `json:"source_url"`
	FinalURL   string    `json:"final_url"`
	Previous   int       `json:"previous"`
	Current    int       `json:"current"`
	Delta      int       `json:"delta"`
	BodySHA256 string    `json:"body_sha256,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}
