package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/healthconnect/scheduling/internal/notification"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeDomainError maps service-layer sentinel errors onto the HTTP error
// taxonomy. Unknown errors become an opaque 500; the handler logs them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidInterval),
		errors.Is(err, scheduling.ErrOutsideTemplate):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, scheduling.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrPatientNotFound),
		errors.Is(err, scheduling.ErrSlotNotFound),
		errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, scheduling.ErrRoomNotFound),
		errors.Is(err, notification.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, scheduling.ErrSlotOverlap),
		errors.Is(err, scheduling.ErrSlotNotAvailable),
		errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, scheduling.ErrSlotNotDeletable),
		errors.Is(err, scheduling.ErrNotPending),
		errors.Is(err, scheduling.ErrDoctorNotApproved):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, scheduling.ErrNotOwner),
		errors.Is(err, notification.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
