// Package clock provides the canonical time source for all scheduling
// decisions. Every component that compares "now" against stored timestamps
// must go through a Clock so tests can pin the instant.
package clock

import "time"

// Zone is the canonical clinic timezone (UTC+1). Stored timestamps are
// naive: captured in this zone, then stripped to UTC wall-clock values so
// they compare cleanly against what the database holds.
var Zone = time.FixedZone("UTC+1", 60*60)

type Clock interface {
	Now() time.Time
}

// System is the production clock.
type System struct{}

func (System) Now() time.Time {
	return time.Now().In(Zone)
}

// Fixed always reports the same instant. Test use only.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time {
	return f.T.In(Zone)
}

// Naive strips the zone from t, keeping the wall-clock reading. The result
// is in UTC purely as a storage convention.
func Naive(t time.Time) time.Time {
	t = t.In(Zone)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// NowNaive is Naive(c.Now()).
func NowNaive(c Clock) time.Time {
	return Naive(c.Now())
}

// Combine merges a calendar date with an hour/minute into one naive timestamp.
func Combine(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC)
}

// DateOf truncates t to midnight, preserving the storage convention.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
