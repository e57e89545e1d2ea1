package handler

import (
	"errors"
	"net/http"

	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/pkg/utils"
)

func handleError(w http.ResponseWriter, err error) {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		utils.Error(w, apiErr)
		return
	}

	var booked *apperrors.AlreadyBookedError
	if errors.As(err, &booked) {
		utils.Error(w, apperrors.AlreadyBooked(booked.WinningBidID))
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrUnauthenticated):
		utils.Error(w, apperrors.Unauthenticated())
	case errors.Is(err, apperrors.ErrBusy):
		utils.Error(w, apperrors.Busy())
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		utils.Error(w, apperrors.StorageUnavailable())
	case errors.Is(err, apperrors.ErrNotFound):
		utils.NotFound(w, "resource")
	default:
		utils.InternalError(w, "internal server error")
	}
}
