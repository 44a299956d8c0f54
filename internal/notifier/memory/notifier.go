// Package memory contains a recording notifier for tests and dry runs.
package memory

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Notifier records every message instead of delivering it.
type Notifier struct {
	mu       sync.RWMutex
	messages []string
	status   int
	err      error
	logger   *zap.Logger
}

// New returns a Notifier answering 204 No Content. A non-nil logger logs
// each message, which is how dry runs surface what would have been sent.
func New(logger *zap.Logger) *Notifier {
	return &Notifier{status: http.StatusNoContent, logger: logger}
}

// RespondWith sets the status and error returned by later Notify calls.
func (n *Notifier) RespondWith(status int, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = status
	n.err = err
}

// Notify implements watch.Notifier.
func (n *Notifier) Notify(_ context.Context, message string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.messages = append(n.messages, message)
	if n.logger != nil {
		n.logger.Info("notification (not delivered)", zap.String("message", message))
	}
	return n.status, nil
}

// Messages returns the recorded messages.
func (n *Notifier) Messages() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}
