// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/threadwatch/internal/app"
	"github.com/JakeFAU/threadwatch/internal/config"
	"github.com/JakeFAU/threadwatch/internal/storage/local"
	memorystore "github.com/JakeFAU/threadwatch/internal/storage/memory"
	"github.com/JakeFAU/threadwatch/internal/watch"
)

type hookRecorder struct {
	mu       sync.Mutex
	contents []string
}

func (h *hookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(raw, &body))
		h.mu.Lock()
		h.contents = append(h.contents, body.Content)
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *hookRecorder) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.contents...)
}

func threadServer(last int) *httptest.Server {
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		for i := 1; i <= last; i++ {
			fmt.Fprintf(w, `<div class="post" id="%d"><span class="postid">%d</span></div>`, i, i)
		}
	}))
}

func baseConfig(sourceURL, webhookURL string) config.Config {
	return config.Config{
		Source: config.SourceConfig{
			URL:            sourceURL,
			MaxRedirects:   5,
			TimeoutSeconds: 5,
		},
		Webhook: config.WebhookConfig{URL: webhookURL, TimeoutSeconds: 5},
		State:   config.StateConfig{Backend: config.BackendMemory},
	}
}

func TestCheckNotifiesAndPersists(t *testing.T) {
	thread := threadServer(12)
	defer thread.Close()
	hooks := &hookRecorder{}
	hook := httptest.NewTLSServer(hooks.handler(t))
	defer hook.Close()

	store := memorystore.NewStateStoreWithRecord([]byte(`{"last": 10}`))
	cfg := baseConfig(thread.URL+"/test/read.cgi/news/1/", hook.URL+"/api/webhooks/1/token")
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "threadwatch.prom")

	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithFetchTransport(thread.Client().Transport),
		app.WithWebhookClient(hook.Client()),
		app.WithStore(store),
	)
	require.NoError(t, err)
	defer a.Close()
	assert.NotEmpty(t, a.RunID())
	assert.Same(t, store, a.Store())

	out, err := a.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watch.StatusNotified, out.Status)
	assert.Equal(t, 2, out.Delta)
	assert.Equal(t, http.StatusNoContent, out.WebhookStatus)

	require.Equal(t, []string{watch.FormatMessage(2, 12, cfg.Source.URL)}, hooks.all())
	last, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, last)

	metricsText, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "threadwatch_runs_total")

	out, err = a.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watch.StatusUnchanged, out.Status)
	assert.Len(t, hooks.all(), 1)
}

func TestCheckDryRunDoesNotPostOrPersist(t *testing.T) {
	thread := threadServer(3)
	defer thread.Close()
	hooks := &hookRecorder{}
	hook := httptest.NewTLSServer(hooks.handler(t))
	defer hook.Close()

	store := memorystore.NewStateStore()
	cfg := baseConfig(thread.URL+"/thread", hook.URL+"/hook")
	cfg.Webhook.DryRun = true

	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithFetchTransport(thread.Client().Transport),
		app.WithStore(store),
	)
	require.NoError(t, err)
	defer a.Close()

	out, err := a.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watch.StatusNotified, out.Status)
	assert.Empty(t, hooks.all())
	assert.Zero(t, store.Saves())
}

func TestCheckFetchFailure(t *testing.T) {
	thread := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer thread.Close()

	cfg := baseConfig(thread.URL+"/thread", "https://discord.example/hook")
	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithFetchTransport(thread.Client().Transport),
	)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Check(context.Background())
	require.ErrorIs(t, err, watch.ErrFetchFailed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig("", "https://discord.example/hook")
	_, err := app.New(context.Background(), cfg, nil)
	require.ErrorIs(t, err, watch.ErrConfig)
}

func TestOpenStore(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "state.json")
		store, closeStore, err := app.OpenStore(context.Background(), config.StateConfig{
			Backend: config.BackendFile,
			Path:    path,
		})
		require.NoError(t, err)
		defer func() { require.NoError(t, closeStore()) }()
		require.IsType(t, &local.StateStore{}, store)

		require.NoError(t, store.Save(context.Background(), 42))
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"last": 42}`, string(raw))
	})

	t.Run("memory", func(t *testing.T) {
		store, closeStore, err := app.OpenStore(context.Background(), config.StateConfig{Backend: config.BackendMemory})
		require.NoError(t, err)
		require.NoError(t, closeStore())
		assert.IsType(t, &memorystore.StateStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := app.OpenStore(context.Background(), config.StateConfig{Backend: "redis"})
		require.ErrorIs(t, err, watch.ErrConfig)
	})
}
