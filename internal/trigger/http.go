package trigger

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/systmms/dfops/internal/logging"
)

// envelope covers the three delivery shapes: a bare GCS notification, a
// Pub/Sub push message and a structured CloudEvent.
type envelope struct {
	Bucket  string `json:"bucket"`
	Name    string `json:"name"`
	Message *struct {
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Data *struct {
		Bucket string `json:"bucket"`
		Name   string `json:"name"`
	} `json:"data"`
}

// ParseEvent extracts the event from a request body. Binary-mode
// CloudEvents carry the object in the body with ce-* headers, which needs no
// special handling.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("malformed event: %w", err)
	}
	switch {
	case env.Bucket != "" && env.Name != "":
		return Event{Bucket: env.Bucket, Name: env.Name}, nil
	case env.Message != nil && env.Message.Attributes["bucketId"] != "":
		return Event{Bucket: env.Message.Attributes["bucketId"], Name: env.Message.Attributes["objectId"]}, nil
	case env.Data != nil && env.Data.Bucket != "":
		return Event{Bucket: env.Data.Bucket, Name: env.Data.Name}, nil
	}
	return Event{}, fmt.Errorf("event has no bucket/name")
}

// ServeHTTP answers 204 for skipped objects, 200 once the run succeeded and
// 500 with the error text otherwise. Malformed requests get 400.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ev, err := ParseEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := h.Handle(r.Context(), ev)
	switch {
	case err != nil:
		logger := h.Logger
		if logger == nil {
			logger = logging.Discard()
		}
		logger.Error("gs://%s/%s: %v", ev.Bucket, ev.Name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case outcome == OutcomeSkipped:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"outcome": string(outcome), "object": ev.Name})
	}
}
