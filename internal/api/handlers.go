package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/notification"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

// Config carries the request-path policy knobs the handlers need.
type Config struct {
	TemplateHorizonDays int
	VideoWindow         scheduling.VideoWindow
}

// Handlers exposes the scheduling and notification services over HTTP.
type Handlers struct {
	ledger  *scheduling.Ledger
	booking *scheduling.Booking
	notif   *notification.Dispatcher
	clk     clock.Clock
	cfg     Config
	log     zerolog.Logger
}

func NewHandlers(ledger *scheduling.Ledger, booking *scheduling.Booking, notif *notification.Dispatcher, clk clock.Clock, cfg Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		ledger:  ledger,
		booking: booking,
		notif:   notif,
		clk:     clk,
		cfg:     cfg,
		log:     log.With().Str("component", "api").Logger(),
	}
}

func (h *Handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.ledger.ApprovedDoctors(r.Context())
	if err != nil {
		h.logError(r, err, "list doctors")
		writeDomainError(w, err)
		return
	}

	out := make([]doctorResponse, 0, len(doctors))
	for i := range doctors {
		out = append(out, toDoctorResponse(&doctors[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid doctor id")
		return
	}

	doctor, err := h.ledger.GetDoctor(r.Context(), doctorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponse(doctor))
}

// listDoctorSlots returns a doctor's open slots in [from, to). Defaults to
// today through the template horizon.
func (h *Handlers) listDoctorSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid doctor id")
		return
	}

	from := clock.DateOf(clock.NowNaive(h.clk))
	to := from.AddDate(0, 0, h.cfg.TemplateHorizonDays)

	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be YYYY-MM-DD")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "to must be YYYY-MM-DD")
			return
		}
	}

	slots, err := h.ledger.ListAvailable(r.Context(), doctorID, from, to)
	if err != nil {
		h.logError(r, err, "list slots")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *Handlers) createSlot(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)
	if !actor.IsDoctor() {
		writeError(w, http.StatusForbidden, "forbidden", "only doctors can declare slots")
		return
	}

	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	startClock, err := time.Parse(timeLayout, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "start must be HH:MM")
		return
	}
	endClock, err := time.Parse(timeLayout, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "end must be HH:MM")
		return
	}

	start := clock.Combine(day, startClock.Hour(), startClock.Minute())
	end := clock.Combine(day, endClock.Hour(), endClock.Minute())

	slot, err := h.ledger.CreateSlot(r.Context(), actor.ProfileID, start, end)
	if err != nil {
		h.logError(r, err, "create slot")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(slot))
}

func (h *Handlers) deleteSlot(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)
	if !actor.IsDoctor() {
		writeError(w, http.StatusForbidden, "forbidden", "only doctors can delete slots")
		return
	}

	slotID, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid slot id")
		return
	}

	if err := h.ledger.DeleteSlot(r.Context(), actor.ProfileID, slotID); err != nil {
		h.logError(r, err, "delete slot")
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// syncTemplate regenerates the calling doctor's available slots from their
// weekly template over the configured horizon.
func (h *Handlers) syncTemplate(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)
	if !actor.IsDoctor() {
		writeError(w, http.StatusForbidden, "forbidden", "only doctors can sync their template")
		return
	}

	generated, err := h.ledger.SyncFromTemplate(r.Context(), actor.ProfileID, h.cfg.TemplateHorizonDays)
	if err != nil {
		h.logError(r, err, "sync template")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncTemplateResponse{Generated: generated})
}

// materializeSlot lazily creates the one-hour slot a doctor's weekly
// template implies for a grid cell no explicit row covers yet.
func (h *Handlers) materializeSlot(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid doctor id")
		return
	}

	var req materializeSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	slot, err := h.ledger.MaterializeTemporary(r.Context(), doctorID, day, req.Hour)
	if err != nil {
		h.logError(r, err, "materialize slot")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *Handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)
	if !actor.IsPatient() {
		writeError(w, http.StatusForbidden, "forbidden", "only patients can book appointments")
		return
	}

	var req bookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SlotID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "slot_id is required")
		return
	}

	appt, err := h.booking.Book(r.Context(), req.SlotID, actor.ProfileID, req.Notes)
	if err != nil {
		h.logError(r, err, "book slot")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	var status *scheduling.AppointmentStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := scheduling.AppointmentStatus(v)
		switch s {
		case scheduling.StatusPending, scheduling.StatusAccepted, scheduling.StatusRejected,
			scheduling.StatusCancelled, scheduling.StatusCompleted:
			status = &s
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
			return
		}
	}

	appts, err := h.booking.ListForActor(r.Context(), actor, status)
	if err != nil {
		h.logError(r, err, "list appointments")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
}

func (h *Handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid appointment id")
		return
	}

	appt, err := h.booking.GetForActor(r.Context(), id, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) acceptAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.booking.Accept)
}

func (h *Handlers) rejectAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.booking.Reject)
}

func (h *Handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.booking.Cancel)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID, actor scheduling.Actor) (*scheduling.Appointment, error)) {
	actor, _ := ActorFrom(r)

	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid appointment id")
		return
	}

	appt, err := fn(r.Context(), id, actor)
	if err != nil {
		h.logError(r, err, "appointment transition")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) videoAccess(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid appointment id")
		return
	}

	access, err := h.booking.VideoAccess(r.Context(), id, actor, h.cfg.VideoWindow)
	if err != nil {
		h.logError(r, err, "video access")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, videoAccessResponse{
		Allowed: access.Allowed,
		RoomID:  access.RoomID,
		Link:    access.Link,
		Reason:  access.Reason,
	})
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = n
	}

	notifications, err := h.notif.List(r.Context(), actor.UserID, limit)
	if err != nil {
		h.logError(r, err, "list notifications")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid notification id")
		return
	}

	if err := h.notif.MarkRead(r.Context(), id, actor.UserID); err != nil {
		h.logError(r, err, "mark notification read")
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	updated, err := h.notif.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		h.logError(r, err, "mark all notifications read")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markAllReadResponse{Updated: updated})
}

func (h *Handlers) unreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r)

	count, err := h.notif.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		h.logError(r, err, "unread count")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{Unread: count})
}

// logError records failures that will surface as 5xx; expected domain
// conflicts are logged at debug to keep the signal clean.
func (h *Handlers) logError(r *http.Request, err error, action string) {
	h.log.Debug().
		Err(err).
		Str("action", action).
		Str("request_id", GetRequestID(r.Context())).
		Msg("request failed")
}
