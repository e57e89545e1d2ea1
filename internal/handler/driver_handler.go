package handler

import (
	"encoding/json"
	"net/http"

	"github.com/anirudh/go-ridebid/internal/auth"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/service"
	"github.com/anirudh/go-ridebid/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type DriverHandler struct {
	presence service.PresenceService
	validate *validator.Validate
}

func NewDriverHandler(presence service.PresenceService) *DriverHandler {
	return &DriverHandler{
		presence: presence,
		validate: validator.New(),
	}
}

func (h *DriverHandler) RegisterRoutes(r chi.Router) {
	r.Post("/drivers/{id}/online", h.SetOnline)
	r.Post("/drivers/{id}/location", h.ReportLocation)
	r.Get("/drivers/{id}/presence", h.GetPresence)
}

// selfDriver ensures the acting driver matches the path id: presence is
// mutated only by the owning driver's own calls.
func selfDriver(r *http.Request) (auth.Actor, error) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		return auth.Actor{}, err
	}
	if !actor.IsDriver() || actor.ID != chi.URLParam(r, "id") {
		return auth.Actor{}, apperrors.Unauthorized("presence belongs to the acting driver")
	}
	return actor, nil
}

// POST /v1/drivers/{id}/online
func (h *DriverHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	actor, err := selfDriver(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req models.SetOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	presence, err := h.presence.SetOnline(r.Context(), actor, req.Online)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, presence.ToResponse())
}

// POST /v1/drivers/{id}/location
func (h *DriverHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	actor, err := selfDriver(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req models.ReportLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	presence, err := h.presence.ReportLocation(r.Context(), actor, req.Lat, req.Lng)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, presence.ToResponse())
}

// GET /v1/drivers/{id}/presence
func (h *DriverHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "driver id is required")
		return
	}

	presence, err := h.presence.GetPresence(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, presence.ToResponse())
}
