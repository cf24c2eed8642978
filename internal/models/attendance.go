package models

import "time"

// AttendanceDraft holds marks staged by an instructor before the bulk submit.
type AttendanceDraft struct {
	InstructorID int64          `json:"instructor_id"`
	SlotID       int64          `json:"slot_id"`
	Marks        map[int64]bool `json:"marks"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AttendanceRow is one reservation of the slot with its effective mark.
type AttendanceRow struct {
	ReservationID int64  `json:"reservation_id"`
	ClientID      int64  `json:"client_id"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	Attended      *bool  `json:"attended"`
	Staged        bool   `json:"staged"`
}

// AttendanceSheet is the view an instructor fills in.
type AttendanceSheet struct {
	Slot   ClassSlot       `json:"slot"`
	Rows   []AttendanceRow `json:"rows"`
	Marked int             `json:"marked"`
	Total  int             `json:"total"`
	Ready  bool            `json:"ready"`
}

// Tally recomputes Marked, Total and Ready from the rows.
func (s *AttendanceSheet) Tally() {
	s.Total = len(s.Rows)
	s.Marked = 0
	for _, r := range s.Rows {
		if r.Attended != nil {
			s.Marked++
		}
	}
	s.Ready = s.Total > 0 && s.Marked == s.Total
}

// PastClass is an entry of the instructor's attendance history.
type PastClass struct {
	Slot      ClassSlot `json:"slot"`
	Confirmed int       `json:"confirmed"`
	Marked    int       `json:"marked"`
}
