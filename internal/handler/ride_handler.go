package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/anirudh/go-ridebid/internal/auth"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/service"
	"github.com/anirudh/go-ridebid/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type RideHandler struct {
	lifecycle service.LifecycleService
	validate  *validator.Validate
}

func NewRideHandler(lifecycle service.LifecycleService) *RideHandler {
	return &RideHandler{
		lifecycle: lifecycle,
		validate:  validator.New(),
	}
}

func (h *RideHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rides", h.CreateRide)
	r.Get("/rides/open", h.ListOpenRequests)
	r.Get("/rides/{id}", h.GetRide)
	r.Post("/rides/{id}/cancel", h.CancelRide)
	r.Post("/rides/{id}/transition", h.TransitionRide)
}

// POST /v1/rides
func (h *RideHandler) CreateRide(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	var req models.CreateRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	ride, err := h.lifecycle.CreateRide(r.Context(), actor, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, ride.ToResponse())
}

// GET /v1/rides/open
// Drivers use this for resync after reconnect; lat/lng/radius_km narrow the
// listing store-side.
func (h *RideHandler) ListOpenRequests(w http.ResponseWriter, r *http.Request) {
	var near *service.NearbyFilter

	q := r.URL.Query()
	if q.Get("lat") != "" && q.Get("lng") != "" {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || errLng != nil {
			utils.BadRequest(w, "lat and lng must be numeric")
			return
		}
		radius := 5.0
		if q.Get("radius_km") != "" {
			parsed, err := strconv.ParseFloat(q.Get("radius_km"), 64)
			if err != nil || parsed <= 0 {
				utils.BadRequest(w, "radius_km must be a positive number")
				return
			}
			radius = parsed
		}
		near = &service.NearbyFilter{Lat: lat, Lng: lng, RadiusKm: radius}
	}

	rides, err := h.lifecycle.ListOpenRequests(r.Context(), near)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, rides)
}

// GET /v1/rides/{id}
func (h *RideHandler) GetRide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "ride id is required")
		return
	}

	ride, err := h.lifecycle.GetRide(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride)
}

// POST /v1/rides/{id}/cancel
func (h *RideHandler) CancelRide(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "ride id is required")
		return
	}

	var req models.CancelRideRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	ride, err := h.lifecycle.Transition(r.Context(), id, models.RideStatusCancelled, actor, req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride.ToResponse())
}

// POST /v1/rides/{id}/transition
// Drivers mark pickup (in_progress) and dropoff (completed) here.
func (h *RideHandler) TransitionRide(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "ride id is required")
		return
	}

	var req models.TransitionRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	ride, err := h.lifecycle.Transition(r.Context(), id, req.Target, actor, "")
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride.ToResponse())
}
