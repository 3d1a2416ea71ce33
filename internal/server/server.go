// Package server exposes the extraction core to collaborators over HTTP.
//
// The form/display collaborator connects to /session and streams recognition
// events (started/stopped signals, fragments, engine error codes) as JSON
// messages over a WebSocket; inferred fields, failures, and suggestion
// responses flow back on the same connection. Each connection owns its own
// extractor session.
//
// A small REST surface under /records persists confirmed work records, and
// the usual /healthz, /readyz, and /metrics endpoints are served alongside.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/skawahara/agrivoice/internal/extractor"
	"github.com/skawahara/agrivoice/internal/fieldreg"
	"github.com/skawahara/agrivoice/internal/health"
	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/internal/observe"
	"github.com/skawahara/agrivoice/internal/records"
	"github.com/skawahara/agrivoice/internal/vocab"
	"github.com/skawahara/agrivoice/pkg/geo"
	"github.com/skawahara/agrivoice/pkg/location"
	"github.com/skawahara/agrivoice/pkg/speech"
)

// shutdownTimeout bounds the HTTP server drain during Shutdown.
const shutdownTimeout = 10 * time.Second

// writeTimeout bounds a single WebSocket write.
const writeTimeout = 5 * time.Second

// Deps holds the shared components a Server wires into each session.
type Deps struct {
	// Normalizer and Engine are shared across sessions (both are pure).
	Normalizer *vocab.Normalizer
	Engine     *inference.Engine

	// Fields is the known-field registry.
	Fields fieldreg.Store

	// Records is the work-record store.
	Records records.Store

	// Matcher decides when a registered field counts as "here".
	Matcher geo.Matcher

	// Location is an optional server-side coordinate provider, consulted when
	// a suggest event carries no coordinate. Typically a [location.Cached]
	// around a platform provider. Nil means the collaborator must always send
	// its own coordinate.
	Location location.Provider

	// Client is the acquisition policy served to collaborators on
	// /client-config.
	Client ClientConfig

	// Metrics records pipeline metrics. Nil falls back to the default.
	Metrics *observe.Metrics

	// Health serves the readiness checkers. Nil disables the endpoints.
	Health *health.Handler

	// Logger is the structured logger. Nil falls back to slog.Default.
	Logger *slog.Logger
}

// ClientConfig is the acquisition policy a collaborator fetches at startup:
// which language to recognise and how to behave when acquiring a coordinate.
// It mirrors the location defaults so every device applies the same staleness
// and timeout policy.
type ClientConfig struct {
	// Language is the BCP-47 recognition language tag, e.g. "ja-JP".
	Language string `json:"language"`

	// ThresholdKm is the proximity-match threshold in kilometres.
	ThresholdKm float64 `json:"threshold_km"`

	// RequestTimeoutSeconds bounds a single coordinate request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// MaxAgeMinutes is the acceptable staleness of a cached fix.
	MaxAgeMinutes int `json:"max_age_minutes"`
}

// Server is the HTTP/WebSocket front of the extraction core.
type Server struct {
	addr string
	deps Deps
	log  *slog.Logger

	httpSrv *http.Server
}

// New creates a Server listening on addr once Run is called.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		addr: addr,
		deps: deps,
		log:  deps.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("GET /client-config", s.handleClientConfig)
	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("POST /records", s.handleAddRecord)
	mux.HandleFunc("DELETE /records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("GET /records/search", s.handleSearchRecords)
	mux.HandleFunc("GET /records/statistics", s.handleStatistics)
	mux.Handle("GET /metrics", promhttp.Handler())
	if deps.Health != nil {
		deps.Health.Register(mux)
	}

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Run serves until ctx is cancelled, then drains connections gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ─── WebSocket session ────────────────────────────────────────────────────────

// clientEvent is one JSON message from the collaborator.
type clientEvent struct {
	// Type is one of: start, stop, fragment, error, suggest, confirm_field.
	Type string `json:"type"`

	// Fragment payload (type "fragment").
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Recognition error code (type "error").
	Code string `json:"code,omitempty"`

	// Field name (type "confirm_field").
	Name string `json:"name,omitempty"`

	// Coordinate payload (types "suggest" and "confirm_field").
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
	AccuracyM float64 `json:"accuracy_m,omitempty"`
}

// serverEvent is one JSON message to the collaborator.
type serverEvent struct {
	// Type is one of: interim, fields, failure, suggestion, confirmed, error.
	Type string `json:"type"`

	// Interim display text (type "interim").
	Text string `json:"text,omitempty"`

	// Inferred fields (type "fields").
	Fields *fieldsPayload `json:"fields,omitempty"`

	// Failure payload (types "failure" and "error").
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Suggestion payload (type "suggestion").
	FieldName string `json:"field_name,omitempty"`
	Found     bool   `json:"found,omitempty"`
}

// fieldsPayload is the wire form of [inference.Fields].
type fieldsPayload struct {
	WorkType  string `json:"work_type,omitempty"`
	CropType  string `json:"crop_type,omitempty"`
	FieldName string `json:"field_name,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	RawText   string `json:"raw_text"`
}

// wsSink delivers extractor outputs to the connected collaborator.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
	log  *slog.Logger
}

var _ extractor.Sink = (*wsSink)(nil)

func (w *wsSink) send(ev serverEvent) {
	ctx, cancel := context.WithTimeout(w.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, w.conn, ev); err != nil {
		w.log.Warn("session write failed", "type", ev.Type, "err", err)
	}
}

func (w *wsSink) OnInterim(text string) {
	w.send(serverEvent{Type: "interim", Text: text})
}

func (w *wsSink) OnFields(f inference.Fields) {
	w.send(serverEvent{Type: "fields", Fields: &fieldsPayload{
		WorkType:  string(f.WorkType),
		CropType:  string(f.CropType),
		FieldName: f.FieldName,
		Quantity:  f.Quantity,
		RawText:   f.RawText,
	}})
}

func (w *wsSink) OnFailure(f extractor.Failure) {
	w.send(serverEvent{Type: "failure", Code: string(f.Code), Message: f.Message})
}

// handleSession upgrades the connection and runs one extractor session over
// it until the collaborator disconnects.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("session accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session closed")

	ctx := r.Context()
	sink := &wsSink{ctx: ctx, conn: conn, log: s.log}

	ext, err := extractor.New(extractor.Config{
		Normalizer: s.deps.Normalizer,
		Engine:     s.deps.Engine,
		Fields:     s.deps.Fields,
		Matcher:    s.deps.Matcher,
		Metrics:    s.deps.Metrics,
		Logger:     s.log,
		Sink:       sink,
	})
	if err != nil {
		s.log.Error("session setup failed", "err", err)
		conn.Close(websocket.StatusInternalError, "setup failed")
		return
	}

	for {
		var ev clientEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "bye")
				return
			}
			s.log.Warn("session read failed", "err", err)
			return
		}
		s.dispatch(ctx, ext, sink, ev)
	}
}

// dispatch routes one collaborator event to the extractor.
func (s *Server) dispatch(ctx context.Context, ext *extractor.Extractor, sink *wsSink, ev clientEvent) {
	switch ev.Type {
	case "start":
		ext.OnStarted()

	case "stop":
		ext.OnStopped()

	case "fragment":
		ext.OnFragment(speech.Fragment{
			Text:       ev.Text,
			IsFinal:    ev.IsFinal,
			Confidence: ev.Confidence,
		})

	case "error":
		ext.OnError(speech.ErrorCode(ev.Code))

	case "suggest":
		current := geo.Coordinate{Lat: ev.Lat, Lng: ev.Lng, AccuracyMeters: ev.AccuracyM}
		if current == (geo.Coordinate{}) && s.deps.Location != nil {
			var err error
			current, err = s.deps.Location.Current(ctx)
			if err != nil {
				sink.send(serverEvent{Type: "error", Message: err.Error()})
				return
			}
		}
		name, found, err := ext.SuggestFieldName(ctx, current)
		if err != nil {
			sink.send(serverEvent{Type: "error", Message: err.Error()})
			return
		}
		sink.send(serverEvent{Type: "suggestion", FieldName: name, Found: found})

	case "confirm_field":
		recorded, err := ext.ConfirmField(ctx, ev.Name, geo.Coordinate{
			Lat: ev.Lat, Lng: ev.Lng, AccuracyMeters: ev.AccuracyM,
		})
		if err != nil {
			sink.send(serverEvent{Type: "error", Message: err.Error()})
			return
		}
		sink.send(serverEvent{Type: "confirmed", FieldName: recorded})

	default:
		sink.send(serverEvent{Type: "error", Message: fmt.Sprintf("unknown event type %q", ev.Type)})
	}
}
