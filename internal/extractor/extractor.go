// Package extractor orchestrates the speech-to-record pipeline for one
// recording session.
//
// The extractor is a small state machine driven by a speech collaborator:
// started/stopped signals move it between Idle and Listening, interim
// fragments pass through to a live display, and each final fragment runs the
// normalize→infer pipeline and delivers the resulting fields to the sink.
// Recognition errors are turned into categorized failures and drop the
// session back to Idle; nothing here ever takes the process down.
//
// Field-name suggestion is a separate, on-demand operation: given a fresh
// coordinate, the extractor asks the proximity matcher for the nearest
// registered field.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skawahara/agrivoice/internal/fieldreg"
	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/internal/observe"
	"github.com/skawahara/agrivoice/internal/vocab"
	"github.com/skawahara/agrivoice/pkg/geo"
	"github.com/skawahara/agrivoice/pkg/speech"
)

// State is the session state of an [Extractor].
type State string

const (
	// StateIdle — no recognition session is active.
	StateIdle State = "idle"

	// StateListening — fragments are being received and processed.
	StateListening State = "listening"
)

// Failure is a categorized recognition failure for the notification layer.
type Failure struct {
	// Code is the collaborator-reported error code.
	Code speech.ErrorCode

	// Message is the human-readable description for display.
	Message string
}

// Sink receives the extractor's outputs. Implemented by the display/form
// collaborator. Callbacks are invoked sequentially from the fragment-delivery
// thread and must not block.
type Sink interface {
	// OnInterim delivers the latest interim text for live display. The value
	// is pass-through only and is superseded by the next fragment.
	OnInterim(text string)

	// OnFields delivers the fields inferred from one finalized utterance.
	// Unset members are zero values; the sink must not treat absence as an
	// instruction to clear values it already holds. Fields.RawText carries
	// the original utterance for an empty work-details form field — a
	// non-empty one must be left untouched.
	OnFields(f inference.Fields)

	// OnFailure delivers a categorized recognition failure.
	OnFailure(f Failure)
}

// Config holds the dependencies for [New].
type Config struct {
	// Normalizer rewrites raw transcripts into domain vocabulary. Required.
	Normalizer *vocab.Normalizer

	// Engine derives fields from normalized text. Required.
	Engine *inference.Engine

	// Fields is the known-field registry. Required.
	Fields fieldreg.Store

	// Matcher decides when a registered field counts as "here".
	// Zero value falls back to the default threshold.
	Matcher geo.Matcher

	// Sink receives outputs. Required.
	Sink Sink

	// Metrics records pipeline metrics. Nil falls back to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger is the structured logger. Nil falls back to [slog.Default].
	Logger *slog.Logger
}

// Extractor drives the per-utterance inference pipeline and the on-demand
// field-name suggestion. It implements [speech.Handler].
//
// Fragments are processed one at a time to completion; the mutex makes that
// hold even if the speech collaborator misbehaves and delivers concurrently.
type Extractor struct {
	normalizer *vocab.Normalizer
	engine     *inference.Engine
	fields     fieldreg.Store
	matcher    geo.Matcher
	sink       Sink
	metrics    *observe.Metrics
	log        *slog.Logger

	mu    sync.Mutex
	state State
}

// Compile-time assertion that Extractor satisfies speech.Handler.
var _ speech.Handler = (*Extractor)(nil)

// New creates an Extractor in the Idle state.
func New(cfg Config) (*Extractor, error) {
	if cfg.Normalizer == nil || cfg.Engine == nil || cfg.Fields == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("extractor: normalizer, engine, fields, and sink are required")
	}
	if cfg.Matcher.ThresholdKm <= 0 {
		cfg.Matcher = geo.NewMatcher(geo.DefaultThresholdKm)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{
		normalizer: cfg.Normalizer,
		engine:     cfg.Engine,
		fields:     cfg.Fields,
		matcher:    cfg.Matcher,
		sink:       cfg.Sink,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		state:      StateIdle,
	}, nil
}

// State returns the current session state.
func (e *Extractor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnStarted implements [speech.Handler]. Transitions Idle → Listening.
func (e *Extractor) OnStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateListening {
		return
	}
	e.state = StateListening
	e.metrics.ActiveSessions.Add(context.Background(), 1)
	e.log.Info("recording started")
}

// OnStopped implements [speech.Handler]. Transitions Listening → Idle.
// Inference already triggered by a prior final fragment has completed by the
// time this runs — fragments are processed to completion under the mutex.
func (e *Extractor) OnStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle {
		return
	}
	e.state = StateIdle
	e.metrics.ActiveSessions.Add(context.Background(), -1)
	e.log.Info("recording stopped")
}

// OnFragment implements [speech.Handler]. Interim fragments pass through to
// the sink's live display; final fragments run the pipeline. Fragments
// arriving outside a session are dropped.
func (e *Extractor) OnFragment(f speech.Fragment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateListening {
		e.log.Debug("fragment outside session dropped", "is_final", f.IsFinal)
		return
	}

	ctx := context.Background()
	e.metrics.RecordFragment(ctx, f.IsFinal)

	if !f.IsFinal {
		e.sink.OnInterim(f.Text)
		return
	}

	e.processFinal(ctx, f.Text)
}

// processFinal runs normalize→infer for one finalized utterance and delivers
// the result. Must be called with e.mu held.
func (e *Extractor) processFinal(ctx context.Context, raw string) {
	start := time.Now()

	normalized := e.normalizer.Normalize(raw)
	fields := e.engine.Infer(normalized)
	fields.RawText = raw

	e.metrics.Utterances.Add(ctx, 1)
	e.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	if fields.WorkType != "" {
		e.metrics.RecordInferenceHit(ctx, "work")
	}
	if fields.CropType != "" {
		e.metrics.RecordInferenceHit(ctx, "crop")
	}
	if fields.FieldName != "" {
		e.metrics.RecordInferenceHit(ctx, "field")
	}
	if fields.Quantity != "" {
		e.metrics.RecordInferenceHit(ctx, "quantity")
	}

	e.log.Info("utterance inferred",
		"work_type", string(fields.WorkType),
		"crop_type", string(fields.CropType),
		"field_name", fields.FieldName,
		"quantity", fields.Quantity,
	)

	e.sink.OnFields(fields)
}

// OnError implements [speech.Handler]. The failure is categorized for the
// sink and the session returns to Idle. No retry is attempted.
func (e *Extractor) OnError(code speech.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !code.IsValid() {
		code = speech.ErrCodeOther
	}

	e.metrics.RecordRecognitionError(context.Background(), string(code))
	e.log.Warn("recognition error", "code", string(code))

	if e.state == StateListening {
		e.state = StateIdle
		e.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	e.sink.OnFailure(Failure{
		Code:    code,
		Message: code.Description(),
	})
}

// SuggestFieldName returns the name of the nearest registered field when one
// lies strictly within the proximity threshold of current. The boolean
// reports whether a suggestion was found; an error means the registry could
// not be read.
func (e *Extractor) SuggestFieldName(ctx context.Context, current geo.Coordinate) (string, bool, error) {
	fields, err := e.fields.All(ctx)
	if err != nil {
		e.metrics.RecordSuggestion(ctx, "error")
		return "", false, fmt.Errorf("extractor: suggest field name: %w", err)
	}

	nearest, ok := fieldreg.Nearest(e.matcher, current, fields)
	if !ok {
		e.metrics.RecordSuggestion(ctx, "miss")
		return "", false, nil
	}

	e.metrics.RecordSuggestion(ctx, "hit")
	return nearest.Name, true, nil
}

// ConfirmField records that the operator confirmed a field at the given
// coordinate, upserting the registry entry (last write wins). The spoken name
// is first reconciled against the registry with a fuzzy lookup, so a
// near-miss transcription updates the existing entry instead of registering a
// duplicate. The name actually recorded is returned.
func (e *Extractor) ConfirmField(ctx context.Context, name string, current geo.Coordinate) (string, error) {
	match, ok, err := fieldreg.FindSimilar(ctx, e.fields, name)
	if err != nil {
		return "", fmt.Errorf("extractor: confirm field %q: %w", name, err)
	}
	if ok && match.Name != name {
		e.log.Info("field name reconciled", "spoken", name, "registered", match.Name)
		name = match.Name
	}

	if err := e.fields.Upsert(ctx, fieldreg.KnownField{Name: name, Location: current}); err != nil {
		return "", fmt.Errorf("extractor: confirm field %q: %w", name, err)
	}
	e.log.Info("field confirmed", "name", name)
	return name, nil
}
