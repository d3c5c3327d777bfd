// Package cadence decides whether a commitment's reminder is due.
package cadence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/impact/internal/model"
)

// WeeklyDay is the only weekday on which weekly commitments fire.
// TODO: move to a per-commitment field once the store schema carries one.
const WeeklyDay = time.Monday

var (
	// ErrInvalidTriggerTime is returned when a trigger time is not HH:MM.
	ErrInvalidTriggerTime = errors.New("invalid trigger time")
	// ErrUnknownCadence is returned for cadences other than Daily, Weekly and Quarterly.
	ErrUnknownCadence = errors.New("unknown cadence")
)

// Evaluator applies the due rules in a single configured location.
type Evaluator struct {
	loc *time.Location
}

// New returns an Evaluator for loc. A nil loc means UTC.
func New(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

// Location returns the zone all comparisons are made in.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// IsDue reports whether c should be sent at now. An error always comes with
// false; the commitment is misconfigured and must be skipped.
func (e *Evaluator) IsDue(c model.Commitment, now time.Time) (bool, error) {
	now = now.In(e.loc)

	if c.LastSent != nil && SameDay(c.LastSent.In(e.loc), now) {
		return false, nil
	}

	hour, minute, err := ParseClock(c.TriggerTime)
	if err != nil {
		return false, err
	}
	trigger := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, e.loc)
	if now.Before(trigger) {
		return false, nil
	}

	switch c.Cadence {
	case model.CadenceDaily:
		return true, nil
	case model.CadenceWeekly:
		return now.Weekday() == WeeklyDay, nil
	case model.CadenceQuarterly:
		return IsQuarterStart(now), nil
	default:
		return false, fmt.Errorf("%w %q", ErrUnknownCadence, c.Cadence)
	}
}

// ParseClock parses an HH:MM time of day. A single-digit hour is accepted.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidTriggerTime, s)
	}
	return t.Hour(), t.Minute(), nil
}

// SameDay reports whether a and b fall on the same calendar date. Both must
// already be in the same location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsQuarterStart reports whether t is the first day of a calendar quarter.
func IsQuarterStart(t time.Time) bool {
	return t.Day() == 1 && (t.Month()-1)%3 == 0
}
