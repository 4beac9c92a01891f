package engine

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// NIGHT - One calendar date a property is held
// =============================================================================

const NightLayout = "2006-01-02"

// Night is a calendar date at day granularity (UTC midnight).
// The check-out date of a stay is never a booked night.
type Night struct {
	Time time.Time
}

func NewNight(year int, month time.Month, day int) Night {
	return Night{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// NightOf truncates any instant to its UTC calendar date.
func NightOf(t time.Time) Night {
	t = t.UTC()
	return NewNight(t.Year(), t.Month(), t.Day())
}

// ParseNight accepts "2006-01-02" or an RFC3339 timestamp.
func ParseNight(s string) (Night, error) {
	if t, err := time.Parse(NightLayout, s); err == nil {
		return NightOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Night{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return NightOf(t), nil
}

func (n Night) Before(o Night) bool { return n.Time.Before(o.Time) }
func (n Night) After(o Night) bool  { return n.Time.After(o.Time) }
func (n Night) Equal(o Night) bool  { return n.Time.Equal(o.Time) }
func (n Night) IsZero() bool        { return n.Time.IsZero() }
func (n Night) AddDays(d int) Night { return Night{Time: n.Time.AddDate(0, 0, d)} }
func (n Night) String() string      { return n.Time.Format(NightLayout) }

// =============================================================================
// STAY - [CheckIn, CheckOut)
// =============================================================================

type Stay struct {
	CheckIn  Night
	CheckOut Night
}

// Contains reports whether n is a bookable night of the stay.
func (s Stay) Contains(n Night) bool {
	return !n.Before(s.CheckIn) && n.Before(s.CheckOut)
}

// Nights lists every night of the stay, check-out excluded.
func (s Stay) Nights() []Night {
	var nights []Night
	for n := s.CheckIn; n.Before(s.CheckOut); n = n.AddDays(1) {
		nights = append(nights, n)
	}
	return nights
}

func (s Stay) String() string {
	return "[" + s.CheckIn.String() + ", " + s.CheckOut.String() + ")"
}

// SortNights orders nights chronologically in place.
func SortNights(nights []Night) {
	sort.Slice(nights, func(i, j int) bool { return nights[i].Before(nights[j]) })
}

// NightStrings formats nights for storage and error messages.
func NightStrings(nights []Night) []string {
	out := make([]string, len(nights))
	for i, n := range nights {
		out[i] = n.String()
	}
	return out
}
