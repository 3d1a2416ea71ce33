package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/skawahara/agrivoice/internal/fieldreg"
	"github.com/skawahara/agrivoice/internal/health"
	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/internal/records"
	"github.com/skawahara/agrivoice/internal/vocab"
	"github.com/skawahara/agrivoice/pkg/geo"
	"github.com/skawahara/agrivoice/pkg/location"
)

// newTestServer builds a Server over in-memory stores and exposes its handler
// through httptest.
func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()

	srv := New(":0", Deps{
		Normalizer: vocab.NewNormalizer(vocab.Builtin()),
		Engine:     inference.NewEngine(),
		Fields:     fieldreg.NewMemStore(),
		Records:    records.NewMemStore(),
		Health:     health.New(),
	})

	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return ts, srv
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestRecordsAPI(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	client := ts.Client()

	post := func(t *testing.T, body string) recordPayload {
		t.Helper()
		resp, err := client.Post(ts.URL+"/records", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /records: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST /records = %d, want 201", resp.StatusCode)
		}
		var p recordPayload
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			t.Fatalf("decode created record: %v", err)
		}
		return p
	}

	created := post(t, `{"work_type":"seeding","crop_type":"rice","field_name":"第3圃場","work_details":"いね はしゅ","quantity":"5kg"}`)
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("created record missing server-assigned fields: %+v", created)
	}
	post(t, `{"work_type":"harvesting","crop_type":"tomato","work_details":"トマトの収穫"}`)

	t.Run("list", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/records")
		if err != nil {
			t.Fatalf("GET /records: %v", err)
		}
		defer resp.Body.Close()
		var got []recordPayload
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("list returned %d records, want 2", len(got))
		}
		// Newest first.
		if got[0].WorkType != "harvesting" {
			t.Errorf("list[0].WorkType = %q, want harvesting", got[0].WorkType)
		}
	})

	t.Run("list with filter", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/records?work_type=seeding")
		if err != nil {
			t.Fatalf("GET /records: %v", err)
		}
		defer resp.Body.Close()
		var got []recordPayload
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(got) != 1 || got[0].WorkType != "seeding" {
			t.Errorf("filtered list = %v, want the seeding record only", got)
		}
	})

	t.Run("bad time filter", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/records?from=yesterday")
		if err != nil {
			t.Fatalf("GET /records: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET /records?from=yesterday = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("search", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/records/search?q=" + "%E3%83%88%E3%83%9E%E3%83%88") // トマト
		if err != nil {
			t.Fatalf("GET /records/search: %v", err)
		}
		defer resp.Body.Close()
		var got []recordPayload
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode search: %v", err)
		}
		if len(got) != 1 || got[0].CropType != "tomato" {
			t.Errorf("search = %v, want the tomato record", got)
		}
	})

	t.Run("statistics", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/records/statistics")
		if err != nil {
			t.Fatalf("GET /records/statistics: %v", err)
		}
		defer resp.Body.Close()
		var got struct {
			TotalRecords int `json:"total_records"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode statistics: %v", err)
		}
		if got.TotalRecords != 2 {
			t.Errorf("total_records = %d, want 2", got.TotalRecords)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/records/"+created.ID, nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("DELETE /records/{id}: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("DELETE = %d, want 204", resp.StatusCode)
		}

		// Deleting again reports not found.
		resp, err = client.Do(req.Clone(context.Background()))
		if err != nil {
			t.Fatalf("second DELETE: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("second DELETE = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/records", "application/json", bytes.NewReader([]byte("{")))
		if err != nil {
			t.Fatalf("POST /records: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST invalid body = %d, want 400", resp.StatusCode)
		}
	})
}

func TestSession(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/session"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	send := func(t *testing.T, ev clientEvent) {
		t.Helper()
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			t.Fatalf("write %q: %v", ev.Type, err)
		}
	}
	recv := func(t *testing.T) serverEvent {
		t.Helper()
		var ev serverEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		return ev
	}

	send(t, clientEvent{Type: "start"})

	// An interim fragment comes straight back for live display.
	send(t, clientEvent{Type: "fragment", Text: "いね", IsFinal: false})
	if ev := recv(t); ev.Type != "interim" || ev.Text != "いね" {
		t.Errorf("got %+v, want interim いね", ev)
	}

	// A final fragment runs the pipeline and delivers fields.
	raw := "いね はしゅ 3号圃場 5きろ"
	send(t, clientEvent{Type: "fragment", Text: raw, IsFinal: true})
	ev := recv(t)
	if ev.Type != "fields" || ev.Fields == nil {
		t.Fatalf("got %+v, want a fields event", ev)
	}
	if ev.Fields.WorkType != "seeding" || ev.Fields.CropType != "rice" ||
		ev.Fields.FieldName != "第3圃場" || ev.Fields.Quantity != "5kg" || ev.Fields.RawText != raw {
		t.Errorf("fields = %+v, want the fully inferred record", ev.Fields)
	}

	// Confirm the field at the current position, then ask for a suggestion
	// from ~80 m away.
	send(t, clientEvent{Type: "confirm_field", Name: "第3圃場", Lat: 37.9170, Lng: 139.0364})
	if ev := recv(t); ev.Type != "confirmed" || ev.FieldName != "第3圃場" {
		t.Errorf("got %+v, want confirmed 第3圃場", ev)
	}

	send(t, clientEvent{Type: "suggest", Lat: 37.91628, Lng: 139.0364})
	if ev := recv(t); ev.Type != "suggestion" || !ev.Found || ev.FieldName != "第3圃場" {
		t.Errorf("got %+v, want suggestion 第3圃場", ev)
	}

	// A near-miss spoken name reconciles to the registered field.
	send(t, clientEvent{Type: "confirm_field", Name: "第3圃場の", Lat: 37.9170, Lng: 139.0364})
	if ev := recv(t); ev.Type != "confirmed" || ev.FieldName != "第3圃場" {
		t.Errorf("got %+v, want the near-miss name confirmed as 第3圃場", ev)
	}

	// A recognition error ends the session with a categorized failure.
	send(t, clientEvent{Type: "error", Code: "no-speech"})
	if ev := recv(t); ev.Type != "failure" || ev.Code != "no-speech" || ev.Message == "" {
		t.Errorf("got %+v, want a no-speech failure", ev)
	}

	// Unknown event types are answered with an error, not a disconnect.
	send(t, clientEvent{Type: "bogus"})
	if ev := recv(t); ev.Type != "error" {
		t.Errorf("got %+v, want an error event", ev)
	}
}

// fixedProvider always reports the same coordinate.
type fixedProvider struct {
	coord geo.Coordinate
}

func (p fixedProvider) Current(context.Context) (geo.Coordinate, error) {
	return p.coord, nil
}

// A suggest event without a coordinate falls back to the server-side
// location provider.
func TestSession_SuggestWithServerSideLocation(t *testing.T) {
	t.Parallel()

	registry := fieldreg.NewMemStore()
	err := registry.Upsert(context.Background(), fieldreg.KnownField{
		Name:     "北の田",
		Location: geo.Coordinate{Lat: 37.9170, Lng: 139.0364},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	srv := New(":0", Deps{
		Normalizer: vocab.NewNormalizer(vocab.Builtin()),
		Engine:     inference.NewEngine(),
		Fields:     registry,
		Location: location.NewCached(
			fixedProvider{coord: geo.Coordinate{Lat: 37.91628, Lng: 139.0364}},
			location.WithTimeout(time.Second),
		),
	})
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/session", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := wsjson.Write(ctx, conn, clientEvent{Type: "suggest"}); err != nil {
		t.Fatalf("write suggest: %v", err)
	}
	var ev serverEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "suggestion" || !ev.Found || ev.FieldName != "北の田" {
		t.Errorf("got %+v, want suggestion 北の田", ev)
	}
}

func TestClientConfig(t *testing.T) {
	t.Parallel()

	srv := New(":0", Deps{
		Normalizer: vocab.NewNormalizer(vocab.Builtin()),
		Engine:     inference.NewEngine(),
		Fields:     fieldreg.NewMemStore(),
		Client: ClientConfig{
			Language:              "ja-JP",
			ThresholdKm:           0.1,
			RequestTimeoutSeconds: 10,
			MaxAgeMinutes:         5,
		},
	})
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/client-config")
	if err != nil {
		t.Fatalf("GET /client-config: %v", err)
	}
	defer resp.Body.Close()

	var got ClientConfig
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := ClientConfig{Language: "ja-JP", ThresholdKm: 0.1, RequestTimeoutSeconds: 10, MaxAgeMinutes: 5}
	if got != want {
		t.Errorf("client config = %+v, want %+v", got, want)
	}
}
