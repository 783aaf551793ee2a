package scheduling

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthconnect/scheduling/internal/clock"
)

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotBooked      SlotStatus = "booked"
	SlotUnavailable SlotStatus = "unavailable"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusAccepted  AppointmentStatus = "accepted"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type DoctorStatus string

const (
	DoctorPending  DoctorStatus = "pending"
	DoctorApproved DoctorStatus = "approved"
	DoctorRejected DoctorStatus = "rejected"
)

type Doctor struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Specialty *string
	Fee       *float64
	Status    DoctorStatus
	// Declarative weekly availability template: a set of weekdays plus a
	// set of hour ranges, stored as compact strings ("1,3,5" / "9-12,14-17").
	AvailableDays  string
	AvailableHours string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Date is the calendar day the slot belongs to.
func (s *Slot) Date() time.Time {
	return clock.DateOf(s.StartTime)
}

// Overlaps reports whether [start, end) intersects the slot's interval.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return start.Before(s.EndTime) && s.StartTime.Before(end)
}

type Appointment struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	Status    AppointmentStatus
	Notes     string
	// VideoRoomID is an opaque unique token generated on accept,
	// generate-if-absent, never overwritten once set.
	VideoRoomID    *string
	VideoLink      *string
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReminderTarget is an appointment hydrated with the user ids and display
// names the reminder scan needs to address both parties.
type ReminderTarget struct {
	Appointment
	DoctorUserID  uuid.UUID
	PatientUserID uuid.UUID
	DoctorName    string
	PatientName   string
}

// HourRange is a half-open [Start, End) range of whole hours in the
// canonical zone, e.g. 9-12 covers the 09:00, 10:00 and 11:00 slots.
type HourRange struct {
	Start int
	End   int
}

func (r HourRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Contains reports whether hour falls inside the range.
func (r HourRange) Contains(hour int) bool {
	return hour >= r.Start && hour < r.End
}

// ParseWeekdays parses "1,3,5" into weekdays (0 = Sunday). Malformed
// entries are skipped; the template is best-effort by design.
func ParseWeekdays(s string) []time.Weekday {
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// ParseHourRanges parses "9-12,14-17" into hour ranges, skipping malformed
// or inverted entries.
func ParseHourRanges(s string) []HourRange {
	var ranges []HourRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			continue
		}
		start, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
		end, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err1 != nil || err2 != nil || start < 0 || end > 24 || start >= end {
			continue
		}
		ranges = append(ranges, HourRange{Start: start, End: end})
	}
	return ranges
}

// FormatWeekdays renders a deduplicated, sorted weekday set.
func FormatWeekdays(days []time.Weekday) string {
	seen := make(map[time.Weekday]struct{}, len(days))
	var uniq []int
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		uniq = append(uniq, int(d))
	}
	sort.Ints(uniq)

	parts := make([]string, 0, len(uniq))
	for _, d := range uniq {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// FormatHourRanges renders a deduplicated, sorted hour-range set.
func FormatHourRanges(ranges []HourRange) string {
	seen := make(map[HourRange]struct{}, len(ranges))
	var uniq []HourRange
	for _, r := range ranges {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		uniq = append(uniq, r)
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].Start != uniq[j].Start {
			return uniq[i].Start < uniq[j].Start
		}
		return uniq[i].End < uniq[j].End
	})

	parts := make([]string, 0, len(uniq))
	for _, r := range uniq {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

// TemplateDays returns the doctor's weekly template weekdays.
func (d *Doctor) TemplateDays() []time.Weekday {
	return ParseWeekdays(d.AvailableDays)
}

// TemplateHours returns the doctor's weekly template hour ranges.
func (d *Doctor) TemplateHours() []HourRange {
	return ParseHourRanges(d.AvailableHours)
}

// TemplateImplies reports whether the weekly template covers the given
// weekday and hour.
func (d *Doctor) TemplateImplies(day time.Weekday, hour int) bool {
	onDay := false
	for _, td := range d.TemplateDays() {
		if td == day {
			onDay = true
			break
		}
	}
	if !onDay {
		return false
	}
	for _, r := range d.TemplateHours() {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// DisplayName is the name used in human-facing notifications and room
// presence events; doctors get the "Dr." prefix.
func DisplayName(name string, isDoctor bool) string {
	if isDoctor {
		return "Dr. " + name
	}
	return name
}
