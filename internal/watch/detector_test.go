package watch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/threadwatch/internal/clock"
	"github.com/JakeFAU/threadwatch/internal/digest"
	"github.com/JakeFAU/threadwatch/internal/extract"
	notifymemory "github.com/JakeFAU/threadwatch/internal/notifier/memory"
	pubmemory "github.com/JakeFAU/threadwatch/internal/publisher/memory"
	"github.com/JakeFAU/threadwatch/internal/storage/memory"
	"github.com/JakeFAU/threadwatch/internal/watch"
)

const sourceURL = "https://mi.5ch.net/test/read.cgi/news4vip/1700000000/"

type fakeFetcher struct {
	result watch.FetchResult
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (watch.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return watch.FetchResult{}, f.err
	}
	res := f.result
	if res.FinalURL == "" {
		res.FinalURL = rawURL
	}
	return res, nil
}

type fakeRecorder struct {
	outcomes      []string
	fetches       int
	notifications []int
}

func (r *fakeRecorder) ObserveFetch(int, int, time.Duration) { r.fetches++ }
func (r *fakeRecorder) ObserveRun(outcome string, _ int)     { r.outcomes = append(r.outcomes, outcome) }
func (r *fakeRecorder) ObserveNotification(status int) {
	r.notifications = append(r.notifications, status)
}

// page renders the first few posts and the last one, which is all the
// extractor needs to see.
func page(last int) string {
	var b strings.Builder
	for i := 1; i <= last; i++ {
		if i > 3 && i < last {
			continue
		}
		fmt.Fprintf(&b, `<div class="post" id="%d" data-date="NG"><span class="postid">%d</span></div>`+"\n", i, i)
	}
	return b.String()
}

type harness struct {
	store     *memory.StateStore
	fetcher   *fakeFetcher
	notifier  *notifymemory.Notifier
	publisher *pubmemory.Publisher
	recorder  *fakeRecorder
	logs      *observer.ObservedLogs
	detector  *watch.Detector
}

func newHarness(t *testing.T, store *memory.StateStore, body string) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	h := &harness{
		store:     store,
		fetcher:   &fakeFetcher{result: watch.FetchResult{StatusCode: http.StatusOK, Body: body}},
		notifier:  notifymemory.New(nil),
		publisher: pubmemory.New(),
		recorder:  &fakeRecorder{},
		logs:      logs,
	}
	h.detector = watch.NewDetector(
		watch.Config{SourceURL: sourceURL, RunID: "run-1"},
		h.store,
		h.fetcher,
		extract.New(nil),
		h.notifier,
		clock.NewFixed(time.Unix(1700000000, 0).UTC()),
		zap.New(core),
		watch.WithPublisher(h.publisher),
		watch.WithHasher(digest.NewSHA256()),
		watch.WithRecorder(h.recorder),
	)
	return h
}

func seeded(t *testing.T, last int) *memory.StateStore {
	t.Helper()
	store := memory.NewStateStore()
	require.NoError(t, store.Save(context.Background(), last))
	return store
}

func TestScenarioAFirstRunNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.NewStateStore(), page(37))
	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, watch.StatusNotified, out.Status)
	assert.Equal(t, 37, out.Delta)
	assert.Equal(t, 37, out.Current)
	assert.Equal(t, http.StatusNoContent, out.WebhookStatus)
	assert.Equal(t, extract.TierStructured, out.Tier)

	require.Equal(t, []string{
		"📢 37 new replies detected\nCurrent reply index: 37\n" + sourceURL,
	}, h.notifier.Messages())

	last, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 37, last)

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, 37, events[0].Delta)
	assert.Len(t, events[0].BodySHA256, 64)
	assert.Equal(t, []string{watch.OutcomeNotified}, h.recorder.outcomes)
	assert.Equal(t, []int{http.StatusNoContent}, h.recorder.notifications)
}

func TestScenarioBUnchangedIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	h := newHarness(t, store, page(37))
	_, err := h.detector.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.Saves())

	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watch.StatusUnchanged, out.Status)
	assert.Zero(t, out.Delta)
	assert.Len(t, h.notifier.Messages(), 1, "second run must not notify")
	assert.Equal(t, 1, store.Saves(), "second run must not write state")

	last, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 37, last)
}

func TestScenarioCFetchStatusAborts(t *testing.T) {
	t.Parallel()

	store := seeded(t, 12)
	h := newHarness(t, store, page(50))
	h.fetcher.result.StatusCode = http.StatusNotFound

	_, err := h.detector.Run(context.Background())
	require.ErrorIs(t, err, watch.ErrFetchFailed)
	assert.Empty(t, h.notifier.Messages())
	assert.Equal(t, 1, store.Saves(), "only the seed write")
	assert.Equal(t, []string{watch.OutcomeFetchFailed}, h.recorder.outcomes)
}

func TestEmptyBodyAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.NewStateStore(), "")
	_, err := h.detector.Run(context.Background())
	require.ErrorIs(t, err, watch.ErrFetchFailed)
	assert.Zero(t, h.store.Saves())
}

func TestFetchErrorsPropagate(t *testing.T) {
	t.Parallel()

	for _, fetchErr := range []error{
		fmt.Errorf("follow: %w", watch.ErrTooManyRedirects),
		&watch.TransportError{Op: "fetch", URL: sourceURL, Err: errors.New("tls: handshake failure")},
	} {
		h := newHarness(t, memory.NewStateStore(), page(3))
		h.fetcher.err = fetchErr

		_, err := h.detector.Run(context.Background())
		require.ErrorIs(t, err, fetchErr)
		assert.Empty(t, h.notifier.Messages())
		assert.Zero(t, h.store.Saves())
	}
}

func TestScenarioDNoMatchLogsSuspicious(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.NewStateStore(), "<html><body>maintenance</body></html>")
	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, watch.StatusUnchanged, out.Status)
	assert.Zero(t, out.Current)
	assert.Empty(t, h.notifier.Messages())
	assert.Zero(t, h.store.Saves())
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("no reply index found").Len())
}

func TestNotifyIffGreater(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		watermark int
		current   int
		notify    bool
	}{
		{0, 1, true},
		{10, 11, true},
		{10, 10, false},
		{10, 9, false},
		{5, 0, false},
		{0, 99999, true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(fmt.Sprintf("W=%d,M=%d", tc.watermark, tc.current), func(t *testing.T) {
			t.Parallel()
			store := seeded(t, tc.watermark)
			h := newHarness(t, store, page(tc.current)+"\n")
			if tc.current == 0 {
				h.fetcher.result.Body = "no replies"
			}

			out, err := h.detector.Run(context.Background())
			require.NoError(t, err)
			if !tc.notify {
				assert.Equal(t, watch.StatusUnchanged, out.Status)
				assert.Empty(t, h.notifier.Messages())
				return
			}
			assert.Equal(t, tc.current-tc.watermark, out.Delta)
			require.Len(t, h.notifier.Messages(), 1)
			assert.Contains(t, h.notifier.Messages()[0], fmt.Sprintf("📢 %d new replies", tc.current-tc.watermark))
			last, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.current, last)
		})
	}
}

func TestNotifyTransportErrorSkipsPersist(t *testing.T) {
	t.Parallel()

	store := seeded(t, 4)
	h := newHarness(t, store, page(9))
	h.notifier.RespondWith(0, &watch.TransportError{Op: "notify", URL: "https://discord.example/…", Err: errors.New("reset")})

	_, err := h.detector.Run(context.Background())
	require.True(t, watch.IsTransport(err, "notify"))
	last, loadErr := store.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Equal(t, 4, last, "watermark must stay so the next run re-notifies")
	assert.Empty(t, h.publisher.Events())
	assert.Equal(t, []string{watch.OutcomeNotifyFailed}, h.recorder.outcomes)
}

func TestNonSuccessWebhookStatusStillPersists(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	h := newHarness(t, store, page(6))
	h.notifier.RespondWith(http.StatusTooManyRequests, nil)

	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, out.WebhookStatus)
	last, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, last)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("non-success status").Len())
}

func TestSaveFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	store.FailSave(errors.New("read-only file system"))
	h := newHarness(t, store, page(2))

	_, err := h.detector.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, h.notifier.Messages(), 1, "notification precedes persistence")
	assert.Empty(t, h.publisher.Events())
	assert.Equal(t, []string{watch.OutcomeSaveFailed}, h.recorder.outcomes)
}

func TestCorruptStateTreatedAsZero(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStoreWithRecord([]byte("{oops"))
	h := newHarness(t, store, page(3))

	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Previous)
	assert.Equal(t, 3, out.Delta)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("state record unreadable").Len())
}

func TestLoadWatermarkNeverErrors(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	store.FailLoad(errors.New("permission denied"))
	h := newHarness(t, store, page(1))
	assert.Zero(t, h.detector.LoadWatermark(context.Background()))
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.NewStateStore(), page(8))
	h.publisher.FailWith(errors.New("pubsub unavailable"))

	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watch.StatusNotified, out.Status)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("publish failed").Len())
}

func TestMessageUsesConfiguredURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, memory.NewStateStore(), page(2))
	h.fetcher.result.FinalURL = "https://redirected.example/thread"

	out, err := h.detector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://redirected.example/thread", out.FinalURL)
	assert.True(t, strings.HasSuffix(h.notifier.Messages()[0], "\n"+sourceURL))
}

func TestMinimalDetectorWithoutOptions(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	notifier := notifymemory.New(nil)
	d := watch.NewDetector(
		watch.Config{SourceURL: sourceURL},
		store,
		&fakeFetcher{result: watch.FetchResult{StatusCode: http.StatusOK, Body: "1: a\n2: b\n"}},
		extract.New(nil),
		notifier,
		clock.System{},
		nil,
	)
	out, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Current)
	assert.Equal(t, extract.TierPermissive, out.Tier)
}
