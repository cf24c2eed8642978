package service

import (
	"time"

	"studiobook/internal/models"
)

// Clock pins "now" to the studio timezone so every service agrees on what today is.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Location: loc, Now: time.Now}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now().In(c.loc())
	}
	return c.Now().In(c.loc())
}

// CurrentTime is the present moment in the studio timezone.
func (c Clock) CurrentTime() time.Time {
	return c.now()
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Today is midnight of the current studio day.
func (c Clock) Today() time.Time {
	return dayOf(c.now())
}

// Day maps t to midnight of the same calendar date in the studio timezone.
func (c Clock) Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc())
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatDay(t time.Time) string {
	return t.Format(models.DateLayout)
}

// slotStart combines the slot date and start time in the studio timezone.
func (c Clock) slotStart(slot *models.ClassSlot) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout+" "+models.TimeLayout, slot.Date+" "+slot.StartTime, c.loc())
}
