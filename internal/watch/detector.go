package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Run outcome labels reported to the Recorder.
const (
	OutcomeNotified     = "notified"
	OutcomeUnchanged    = "unchanged"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeNotifyFailed = "notify_failed"
	OutcomeSaveFailed   = "save_failed"
)

// Config carries the per-run values the Detector needs.
type Config struct {
	SourceURL string
	RunID     string
}

// Detector compares the thread's current reply index against the stored
// watermark and sequences the notify-then-persist side effects.
type Detector struct {
	cfg       Config
	store     StateStore
	fetcher   Fetcher
	extractor Extractor
	notifier  Notifier
	publisher Publisher
	hasher    Hasher
	clock     Clock
	recorder  Recorder
	logger    *zap.Logger
}

// Option customizes optional Detector collaborators.
type Option func(*Detector)

// WithPublisher enables change-event fanout after a successful persist.
func WithPublisher(p Publisher) Option {
	return func(d *Detector) { d.publisher = p }
}

// WithHasher attaches a body digest to published events.
func WithHasher(h Hasher) Option {
	return func(d *Detector) { d.hasher = h }
}

// WithRecorder reports run metrics.
func WithRecorder(r Recorder) Option {
	return func(d *Detector) { d.recorder = r }
}

// NewDetector wires the required collaborators.
func NewDetector(
	cfg Config,
	store StateStore,
	fetcher Fetcher,
	extractor Extractor,
	notifier Notifier,
	clock Clock,
	logger *zap.Logger,
	opts ...Option,
) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		cfg:       cfg,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run performs one check. The watermark is written only after the
// notification call returned without a transport error.
func (d *Detector) Run(ctx context.Context) (Outcome, error) {
	previous := d.LoadWatermark(ctx)
	out := Outcome{Previous: previous, Current: previous}

	start := d.clock.Now()
	res, err := d.fetcher.Fetch(ctx, d.cfg.SourceURL)
	if err != nil {
		d.observeRun(OutcomeFetchFailed, previous)
		return out, fmt.Errorf("fetch thread: %w", err)
	}
	d.observeFetch(res, start)
	out.FinalURL = res.FinalURL
	if res.StatusCode != http.StatusOK || res.Body == "" {
		d.observeRun(OutcomeFetchFailed, previous)
		return out, fmt.Errorf("%w: status %d, body %d bytes", ErrFetchFailed, res.StatusCode, len(res.Body))
	}

	ext := d.extractor.Extract(res.Body)
	out.Current = ext.Index
	out.Tier = ext.Tier
	logger := d.logger.With(
		zap.Int("previous", previous),
		zap.Int("current", ext.Index),
		zap.String("final_url", res.FinalURL),
	)

	if ext.Index <= previous {
		out.Status = StatusUnchanged
		d.warnIfSuspicious(logger, ext, len(res.Body))
		logger.Info("no new replies")
		d.observeRun(OutcomeUnchanged, previous)
		return out, nil
	}

	out.Delta = ext.Index - previous
	msg := FormatMessage(out.Delta, ext.Index, d.cfg.SourceURL)
	status, err := d.notifier.Notify(ctx, msg)
	if err != nil {
		d.observeRun(OutcomeNotifyFailed, previous)
		return out, fmt.Errorf("notify webhook: %w", err)
	}
	out.WebhookStatus = status
	d.observeNotification(status)
	if status < 200 || status >= 300 {
		logger.Warn("webhook returned non-success status", zap.Int("status", status))
	}

	if err := d.store.Save(ctx, ext.Index); err != nil {
		d.observeRun(OutcomeSaveFailed, previous)
		return out, fmt.Errorf("save watermark: %w", err)
	}
	out.Status = StatusNotified
	logger.Info("new replies notified", zap.Int("delta", out.Delta), zap.String("tier", ext.Tier))
	d.observeRun(OutcomeNotified, ext.Index)

	d.publish(ctx, res, out)
	return out, nil
}

// LoadWatermark reads the stored watermark. Missing or corrupt records yield
// 0; the failure is logged, never returned.
func (d *Detector) LoadWatermark(ctx context.Context) int {
	last, err := d.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrMalformedState) {
			d.logger.Warn("state record unreadable; starting from 0", zap.Error(err))
		} else {
			d.logger.Warn("state load failed; starting from 0", zap.Error(err))
		}
		return 0
	}
	if last < 0 {
		return 0
	}
	return last
}

func (d *Detector) warnIfSuspicious(logger *zap.Logger, ext Extraction, bodyLen int) {
	if ext.Index != 0 {
		return
	}
	logger.Warn("no reply index found; extraction patterns may no longer match the page",
		zap.Bool("matched", ext.Found),
		zap.Int("body_bytes", bodyLen),
	)
}

func (d *Detector) publish(ctx context.Context, res FetchResult, out Outcome) {
	if d.publisher == nil {
		return
	}
	event := ChangeEvent{
		RunID:      d.cfg.RunID,
		SourceURL:  d.cfg.SourceURL,
		FinalURL:   res.FinalURL,
		Previous:   out.Previous,
		Current:    out.Current,
		Delta:      out.Delta,
		DetectedAt: d.clock.Now(),
	}
	if d.hasher != nil {
		digest, err := d.hasher.Hash([]byte(res.Body))
		if err == nil {
			event.BodySHA256 = digest
		}
	}
	id, err := d.publisher.Publish(ctx, event)
	if err != nil {
		d.logger.Warn("change event publish failed", zap.Error(err))
		return
	}
	d.logger.Debug("change event published", zap.String("message_id", id))
}

func (d *Detector) observeFetch(res FetchResult, start time.Time) {
	if d.recorder != nil {
		d.recorder.ObserveFetch(res.StatusCode, res.Redirects, d.clock.Now().Sub(start))
	}
}

func (d *Detector) observeRun(outcome string, current int) {
	if d.recorder != nil {
		d.recorder.ObserveRun(outcome, current)
	}
}

func (d *Detector) observeNotification(status int) {
	if d.recorder != nil {
		d.recorder.ObserveNotification(status)
	}
}
