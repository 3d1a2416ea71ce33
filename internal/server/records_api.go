package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/internal/records"
	"github.com/skawahara/agrivoice/pkg/geo"
)

// recordPayload is the wire form of [records.Record].
type recordPayload struct {
	ID          string             `json:"id,omitempty"`
	CreatedAt   time.Time          `json:"created_at,omitzero"`
	WorkType    string             `json:"work_type,omitempty"`
	CropType    string             `json:"crop_type,omitempty"`
	FieldName   string             `json:"field_name,omitempty"`
	WorkDetails string             `json:"work_details,omitempty"`
	Quantity    string             `json:"quantity,omitempty"`
	Location    *coordinatePayload `json:"location,omitempty"`
}

type coordinatePayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AccuracyM float64 `json:"accuracy_m,omitempty"`
}

func toPayload(r records.Record) recordPayload {
	p := recordPayload{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		WorkType:    string(r.WorkType),
		CropType:    string(r.CropType),
		FieldName:   r.FieldName,
		WorkDetails: r.WorkDetails,
		Quantity:    r.Quantity,
	}
	if r.Location != nil {
		p.Location = &coordinatePayload{
			Lat:       r.Location.Lat,
			Lng:       r.Location.Lng,
			AccuracyM: r.Location.AccuracyMeters,
		}
	}
	return p
}

func fromPayload(p recordPayload) records.Record {
	r := records.Record{
		ID:          p.ID,
		CreatedAt:   p.CreatedAt,
		WorkType:    inference.WorkType(p.WorkType),
		CropType:    inference.CropType(p.CropType),
		FieldName:   p.FieldName,
		WorkDetails: p.WorkDetails,
		Quantity:    p.Quantity,
	}
	if p.Location != nil {
		r.Location = &geo.Coordinate{
			Lat:            p.Location.Lat,
			Lng:            p.Location.Lng,
			AccuracyMeters: p.Location.AccuracyM,
		}
	}
	return r
}

// errorPayload is the JSON error body for the records API.
type errorPayload struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorPayload{Error: msg})
}

// handleClientConfig serves GET /client-config.
func (s *Server) handleClientConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Client)
}

// handleListRecords serves GET /records. Optional query parameters narrow
// the result: work_type, crop_type, field_name, from, to (RFC 3339).
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.deps.Records == nil {
		s.writeError(w, http.StatusNotImplemented, "record store not configured")
		return
	}

	q := r.URL.Query()
	filter := records.Filter{
		WorkType:  inference.WorkType(q.Get("work_type")),
		CropType:  inference.CropType(q.Get("crop_type")),
		FieldName: q.Get("field_name"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "from: expected RFC 3339 timestamp")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "to: expected RFC 3339 timestamp")
			return
		}
		filter.To = t
	}

	recs, err := s.deps.Records.List(r.Context(), filter)
	if err != nil {
		s.log.Error("record list failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "record list failed")
		return
	}

	out := make([]recordPayload, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toPayload(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleAddRecord serves POST /records.
func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.Records == nil {
		s.writeError(w, http.StatusNotImplemented, "record store not configured")
		return
	}

	var p recordPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid record body")
		return
	}

	stored, err := s.deps.Records.Add(r.Context(), fromPayload(p))
	if err != nil {
		s.log.Error("record add failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "record add failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, toPayload(stored))
}

// handleDeleteRecord serves DELETE /records/{id}.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.Records == nil {
		s.writeError(w, http.StatusNotImplemented, "record store not configured")
		return
	}

	id := r.PathValue("id")
	if err := s.deps.Records.Delete(r.Context(), id); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no record with id "+id)
			return
		}
		s.log.Error("record delete failed", "id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "record delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearchRecords serves GET /records/search?q=term.
func (s *Server) handleSearchRecords(w http.ResponseWriter, r *http.Request) {
	if s.deps.Records == nil {
		s.writeError(w, http.StatusNotImplemented, "record store not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	recs, err := s.deps.Records.Search(r.Context(), query)
	if err != nil {
		s.log.Error("record search failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "record search failed")
		return
	}

	out := make([]recordPayload, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toPayload(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleStatistics serves GET /records/statistics.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Records == nil {
		s.writeError(w, http.StatusNotImplemented, "record store not configured")
		return
	}

	stats, err := s.deps.Records.Statistics(r.Context())
	if err != nil {
		s.log.Error("record statistics failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "record statistics failed")
		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		TotalRecords int            `json:"total_records"`
		ByWorkType   map[string]int `json:"by_work_type"`
		ByCropType   map[string]int `json:"by_crop_type"`
		FieldsUsed   []string       `json:"fields_used"`
		LastWeek     int            `json:"last_week"`
	}{
		TotalRecords: stats.TotalRecords,
		ByWorkType:   stats.ByWorkType,
		ByCropType:   stats.ByCropType,
		FieldsUsed:   stats.FieldsUsed,
		LastWeek:     stats.LastWeek,
	})
}
