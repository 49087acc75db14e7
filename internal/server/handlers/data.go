package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/tollgate/tollgate/internal/errors"
)

const maxDataPayloadBytes = 1 << 20 // 1 MiB

// DataResponse is the payload returned by the sample data endpoints. The
// endpoints exist to give the rate limiter a realistic protected surface;
// the data itself is synthetic.
type DataResponse struct {
	Key         string    `json:"key,omitempty"`
	Items       []string  `json:"items,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DataHandler serves the collection endpoint
func DataHandler(w http.ResponseWriter, r *http.Request) {
	response := DataResponse{
		Items:       []string{"alpha", "bravo", "charlie"},
		GeneratedAt: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// DataItemHandler serves a single keyed item
func DataItemHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("key must not be empty"))
		return
	}

	response := DataResponse{
		Key:         key,
		GeneratedAt: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// DataWriteHandler accepts a JSON payload and acknowledges it
func DataWriteHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDataPayloadBytes))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "Failed to read request body"))
		return
	}

	var payload map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			respondWithError(w, r, apperrors.NewInvalidInputError("request body must be valid JSON"))
			return
		}
	}

	response := map[string]interface{}{
		"accepted":    true,
		"fields":      len(payload),
		"received_at": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(response)
}
