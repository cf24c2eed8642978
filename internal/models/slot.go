package models

import (
	"fmt"
	"time"
)

// ClassSlot is a single scheduled class occurrence.
type ClassSlot struct {
	ID              int64  `json:"id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	CapacityMax     int    `json:"capacity_max"`
	CapacityCurrent int    `json:"capacity_current"`
	InstructorID    int64  `json:"instructor_id,omitempty"`
	InstructorName  string `json:"instructor_name,omitempty"`
	Available       bool   `json:"available"`
}

// Refresh recomputes derived fields after a capacity change.
func (s *ClassSlot) Refresh() {
	s.Available = s.CapacityCurrent < s.CapacityMax
}

// Day parses the slot date.
func (s *ClassSlot) Day() (time.Time, error) {
	d, err := time.Parse(DateLayout, s.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot date %q: %w", s.Date, err)
	}
	return d, nil
}

// OccupancyPercent is the share of seats taken, 0..100.
func (s *ClassSlot) OccupancyPercent() int {
	if s.CapacityMax <= 0 {
		return 0
	}
	return s.CapacityCurrent * 100 / s.CapacityMax
}

const (
	OccupancyEmpty  = "empty"
	OccupancyLow    = "low"
	OccupancyMedium = "medium"
	OccupancyFull   = "full"
)

// Occupancy classifies the slot for the instructor calendar and returns its display color.
func (s *ClassSlot) Occupancy() (state, color string) {
	p := s.OccupancyPercent()
	switch {
	case p == 0:
		return OccupancyEmpty, "#95a5a6"
	case p < 50:
		return OccupancyLow, "#3498db"
	case p < 100:
		return OccupancyMedium, "#f39c12"
	default:
		return OccupancyFull, "#e74c3c"
	}
}

// CalendarSlot is a slot as shown on the instructor calendar.
type CalendarSlot struct {
	ClassSlot
	OccupancyPercent int    `json:"occupancy_percent"`
	OccupancyState   string `json:"occupancy_state"`
	Color            string `json:"color"`
	Confirmed        int    `json:"confirmed_reservations"`
}

// NewCalendarSlot derives the calendar view of a slot.
func NewCalendarSlot(slot ClassSlot, confirmed int) CalendarSlot {
	state, color := slot.Occupancy()
	return CalendarSlot{
		ClassSlot:        slot,
		OccupancyPercent: slot.OccupancyPercent(),
		OccupancyState:   state,
		Color:            color,
		Confirmed:        confirmed,
	}
}
