package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anirudh/go-ridebid/internal/auth"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/stream"
	"github.com/anirudh/go-ridebid/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// StreamHandler exposes the subscription router over SSE. One live stream per
// actor; interests can be added and removed while the stream is up.
type StreamHandler struct {
	router *stream.Router
}

func NewStreamHandler(router *stream.Router) *StreamHandler {
	return &StreamHandler{router: router}
}

func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.Stream)
	r.Post("/stream/subscribe", h.Subscribe)
	r.Post("/stream/unsubscribe", h.Unsubscribe)
}

type interestRequest struct {
	Kind     string `json:"kind"`
	RideID   string `json:"ride_id,omitempty"`
	DriverID string `json:"driver_id,omitempty"`
}

func (req *interestRequest) toInterest(actor auth.Actor) (stream.Interest, error) {
	switch req.Kind {
	case stream.InterestOpenRequests:
		if !actor.IsDriver() {
			return stream.Interest{}, apperrors.Unauthorized("only drivers watch open requests")
		}
		return stream.Interest{Kind: stream.InterestOpenRequests}, nil
	case stream.InterestRide:
		if req.RideID == "" {
			return stream.Interest{}, apperrors.InvalidInput("ride_id is required for a ride interest")
		}
		return stream.Interest{Kind: stream.InterestRide, RideID: req.RideID}, nil
	case stream.InterestDriverPresence:
		if req.DriverID == "" {
			return stream.Interest{}, apperrors.InvalidInput("driver_id is required for a presence interest")
		}
		return stream.Interest{Kind: stream.InterestDriverPresence, DriverID: req.DriverID}, nil
	default:
		return stream.Interest{}, apperrors.InvalidInput("unknown interest kind " + req.Kind)
	}
}

// GET /v1/stream
// Initial interests come from query params: ride=<id> (repeatable), open=1,
// driver=<id>. The stream terminates only on disconnect; filters are
// discarded when it does.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.router.Connect(actor.ID, actor.Role)
	defer sub.Close()

	q := r.URL.Query()
	for _, rideID := range q["ride"] {
		sub.Add(stream.Interest{Kind: stream.InterestRide, RideID: rideID})
	}
	if q.Get("open") != "" && actor.IsDriver() {
		sub.Add(stream.Interest{Kind: stream.InterestOpenRequests})
	}
	if driverID := q.Get("driver"); driverID != "" {
		sub.Add(stream.Interest{Kind: stream.InterestDriverPresence, DriverID: driverID})
	}

	ctx := r.Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {\"time\": %q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// POST /v1/stream/subscribe
func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	var req interestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	interest, err := req.toInterest(actor)
	if err != nil {
		handleError(w, err)
		return
	}

	if !h.router.AddInterest(actor.ID, interest) {
		utils.NotFound(w, "active stream")
		return
	}
	utils.NoContent(w)
}

// POST /v1/stream/unsubscribe
// Removing an interest that was never subscribed, or removing one twice,
// succeeds with no effect.
func (h *StreamHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	var req interestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	interest, err := req.toInterest(actor)
	if err != nil {
		handleError(w, err)
		return
	}

	h.router.RemoveInterest(actor.ID, interest)
	utils.NoContent(w)
}
