package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthconnect/scheduling/internal/scheduling"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type createSlotRequest struct {
	Date  string `json:"date"`  // 2006-01-02
	Start string `json:"start"` // 15:04
	End   string `json:"end"`   // 15:04
}

type materializeSlotRequest struct {
	Date string `json:"date"` // 2006-01-02
	Hour int    `json:"hour"` // 0-23
}

type bookAppointmentRequest struct {
	SlotID uuid.UUID `json:"slot_id"`
	Notes  string    `json:"notes"`
}

type doctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialty      *string   `json:"specialty,omitempty"`
	Fee            *float64  `json:"fee,omitempty"`
	AvailableDays  string    `json:"available_days"`
	AvailableHours string    `json:"available_hours"`
}

type slotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

type appointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	SlotID      uuid.UUID `json:"slot_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	VideoRoomID *string   `json:"video_room_id,omitempty"`
	VideoLink   *string   `json:"video_link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type videoAccessResponse struct {
	Allowed bool   `json:"allowed"`
	RoomID  string `json:"room_id,omitempty"`
	Link    string `json:"link,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type syncTemplateResponse struct {
	Generated int `json:"generated"`
}

type unreadCountResponse struct {
	Unread int `json:"unread"`
}

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

func toDoctorResponse(d *scheduling.Doctor) doctorResponse {
	return doctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialty:      d.Specialty,
		Fee:            d.Fee,
		AvailableDays:  d.AvailableDays,
		AvailableHours: d.AvailableHours,
	}
}

func toSlotResponse(s *scheduling.Slot) slotResponse {
	return slotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date().Format(dateLayout),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    string(s.Status),
	}
}

func toSlotResponses(slots []scheduling.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}

func toAppointmentResponse(a *scheduling.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		SlotID:      a.SlotID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		StartTime:   a.StartTime,
		Status:      string(a.Status),
		Notes:       a.Notes,
		VideoRoomID: a.VideoRoomID,
		VideoLink:   a.VideoLink,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []scheduling.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}
