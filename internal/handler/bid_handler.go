package handler

import (
	"encoding/json"
	"net/http"

	"github.com/anirudh/go-ridebid/internal/auth"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/service"
	"github.com/anirudh/go-ridebid/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type BidHandler struct {
	bids     service.BidService
	validate *validator.Validate
}

func NewBidHandler(bids service.BidService) *BidHandler {
	return &BidHandler{
		bids:     bids,
		validate: validator.New(),
	}
}

func (h *BidHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rides/{id}/bids", h.PlaceBid)
	r.Get("/rides/{id}/bids", h.ListBids)
	r.Post("/bids/{id}/accept", h.AcceptBid)
}

// POST /v1/rides/{id}/bids
func (h *BidHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	rideID := chi.URLParam(r, "id")
	if rideID == "" {
		utils.BadRequest(w, "ride id is required")
		return
	}

	var req models.PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	bid, err := h.bids.PlaceBid(r.Context(), rideID, actor, req.Amount)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, bid.ToResponse())
}

// GET /v1/rides/{id}/bids
// Ordered cheapest first; the coordinator imposes no tie-break beyond that.
func (h *BidHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	if rideID == "" {
		utils.BadRequest(w, "ride id is required")
		return
	}

	bids, err := h.bids.ListBids(r.Context(), rideID)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, bids)
}

// POST /v1/bids/{id}/accept
func (h *BidHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.CurrentActor(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	bidID := chi.URLParam(r, "id")
	if bidID == "" {
		utils.BadRequest(w, "bid id is required")
		return
	}

	ride, err := h.bids.AcceptBid(r.Context(), bidID, actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride)
}
