package domain

import (
	"strings"
	"time"
)

const DefaultTimezone = "Asia/Phnom_Penh"

// Zone is the single place where absolute instants are turned into the
// branches' civil time. Everything persisted stays absolute (UTC); every
// weekday and opening-hours comparison goes through a Zone.
type Zone struct{ loc *time.Location }

func NewZone(name string) (Zone, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, err
	}
	return Zone{loc: loc}, nil
}

func MustZone(name string) Zone {
	z, err := NewZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z Zone) Name() string { return z.Location().String() }

func (z Zone) Local(t time.Time) time.Time { return t.In(z.Location()) }

// Weekday returns the lowercase English day name of t in local time.
func (z Zone) Weekday(t time.Time) string {
	return strings.ToLower(z.Local(t).Weekday().String())
}

// At returns the absolute instant of clock c on t's local calendar date.
func (z Zone) At(t time.Time, c ClockTime) time.Time {
	l := z.Local(t)
	return time.Date(l.Year(), l.Month(), l.Day(), c.Hour, c.Minute, c.Second, 0, z.Location()).UTC()
}

// ParseDate reads a "2006-01-02" local calendar date and returns the
// absolute bounds [midnight, next midnight) of that day.
func (z Zone) ParseDate(s string) (time.Time, time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, z.Location())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	next := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, z.Location())
	return d.UTC(), next.UTC(), nil
}

// CheckBusinessHours reports why [start, end) falls outside the branch's
// opening envelope, or "" when it fits. Open and close are taken on the
// start's local date; a close at or before open means the branch closes
// after midnight.
func (z Zone) CheckBusinessHours(b Branch, start, end time.Time) string {
	day := z.Weekday(start)
	if !b.OpensOn(day) {
		return "Branch is closed on " + day
	}
	openAt := z.At(start, b.OpenTime)
	closeAt := z.At(start, b.CloseTime)
	if !closeAt.After(openAt) {
		closeAt = closeAt.Add(24 * time.Hour)
	}
	if start.Before(openAt) {
		return "Branch opens at " + b.OpenTime.String()
	}
	if end.After(closeAt) {
		return "Branch closes at " + b.CloseTime.String()
	}
	return ""
}
