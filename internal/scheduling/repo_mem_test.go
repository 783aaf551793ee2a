package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository with the same compare-and-set
// semantics as the Postgres implementation. A single mutex stands in for
// row-level locking, which is enough to exercise the contention paths.
type memRepo struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]*Doctor
	patients map[uuid.UUID]*Patient
	slots    map[uuid.UUID]*Slot
	appts    map[uuid.UUID]*Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
		slots:    make(map[uuid.UUID]*Slot),
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

func (m *memRepo) addDoctor(d Doctor) *Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UserID == uuid.Nil {
		d.UserID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DoctorApproved
	}
	m.doctors[d.ID] = &d
	return &d
}

func (m *memRepo) addPatient(p Patient) *Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.UserID == uuid.Nil {
		p.UserID = uuid.New()
	}
	m.patients[p.ID] = &p
	return &p
}

func (m *memRepo) addSlot(s Slot) *Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SlotAvailable
	}
	m.slots[s.ID] = &s
	return &s
}

func (m *memRepo) addAppointment(a Appointment) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.appts[a.ID] = &a
	return &a
}

func (m *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) ListApprovedDoctors(_ context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doctor
	for _, d := range m.doctors {
		if d.Status == DoctorApproved {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateDoctorTemplate(_ context.Context, doctorID uuid.UUID, days, hours string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	d.AvailableDays = days
	d.AvailableHours = hours
	return nil
}

func (m *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) ListSlotsInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) ListAvailableSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Status == SlotAvailable &&
			!s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) CreateSlot(_ context.Context, slot Slot) (*Slot, error) {
	return m.addSlot(slot), nil
}

func (m *memRepo) DeleteAvailableSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Status != SlotAvailable {
		return ErrSlotNotDeletable
	}
	delete(m.slots, id)
	return nil
}

func (m *memRepo) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotAvailable
	}
	if s.Status != from {
		return nil, ErrSlotNotAvailable
	}
	s.Status = to
	cp := *s
	return &cp, nil
}

func (m *memRepo) ReplaceTemplateSlots(_ context.Context, doctorID uuid.UUID, deleteIDs []uuid.UUID, inserts []Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range deleteIDs {
		if s, ok := m.slots[id]; ok && s.DoctorID == doctorID && s.Status == SlotAvailable {
			delete(m.slots, id)
		}
	}
	for _, s := range inserts {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.DoctorID = doctorID
		s.Status = SlotAvailable
		cp := s
		m.slots[cp.ID] = &cp
	}
	return nil
}

func (m *memRepo) BookSlot(_ context.Context, slotID, patientID uuid.UUID, notes string, now time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotAvailable {
		return nil, ErrSlotNotAvailable
	}
	s.Status = SlotBooked

	a := &Appointment{
		ID:        uuid.New(),
		SlotID:    s.ID,
		PatientID: patientID,
		DoctorID:  s.DoctorID,
		StartTime: s.StartTime,
		Status:    StatusPending,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetAppointmentByRoomID(_ context.Context, roomID string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.VideoRoomID != nil && *a.VideoRoomID == roomID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memRepo) AcceptAppointment(_ context.Context, id uuid.UUID, roomID, link string, now time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrNotPending
	}
	a.Status = StatusAccepted
	if a.VideoRoomID == nil {
		a.VideoRoomID = &roomID
		a.VideoLink = &link
	}
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *memRepo) TransitionAndReleaseSlot(_ context.Context, id uuid.UUID, to AppointmentStatus, now time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrNotPending
	}
	a.Status = to
	a.UpdatedAt = now
	if s, ok := m.slots[a.SlotID]; ok && s.Status == SlotBooked {
		s.Status = SlotAvailable
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) EnsureVideoRoom(_ context.Context, id uuid.UUID, roomID, link string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.VideoRoomID == nil {
		a.VideoRoomID = &roomID
		a.VideoLink = &link
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) ClaimDueReminders(_ context.Context, now, until time.Time) ([]ReminderTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReminderTarget
	for _, a := range m.appts {
		if a.Status != StatusAccepted || a.ReminderSentAt != nil {
			continue
		}
		if a.StartTime.Before(now) || a.StartTime.After(until) {
			continue
		}
		sent := now
		a.ReminderSentAt = &sent

		t := ReminderTarget{Appointment: *a}
		if d, ok := m.doctors[a.DoctorID]; ok {
			t.DoctorUserID = d.UserID
			t.DoctorName = d.Name
		}
		if p, ok := m.patients[a.PatientID]; ok {
			t.PatientUserID = p.UserID
			t.PatientName = p.Name
		}
		out = append(out, t)
	}
	return out, nil
}

// nopLocker runs the critical section without any distributed lock; the
// repository's check-and-set still enforces a single winner.
type nopLocker struct{}

func (nopLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// captureNotifier records notifications instead of delivering them.
type captureNotifier struct {
	mu    sync.Mutex
	calls []capturedNotification
}

type capturedNotification struct {
	UserID  uuid.UUID
	Title   string
	Content string
	Type    string
	Urgent  bool
}

func (c *captureNotifier) Notify(_ context.Context, userID uuid.UUID, title, content, ntype string, _ *uuid.UUID, urgent bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, capturedNotification{
		UserID:  userID,
		Title:   title,
		Content: content,
		Type:    ntype,
		Urgent:  urgent,
	})
	return nil
}

func (c *captureNotifier) byType(ntype string) []capturedNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedNotification
	for _, n := range c.calls {
		if n.Type == ntype {
			out = append(out, n)
		}
	}
	return out
}
