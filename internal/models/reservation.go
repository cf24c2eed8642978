package models

import "time"

type Reservation struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	SlotID    int64     `json:"slot_id"`
	PackageID int64     `json:"package_id"`
	Status    string    `json:"status"`
	Attended  *bool     `json:"attended"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// ReservationDetail joins a reservation with its slot and client.
type ReservationDetail struct {
	Reservation
	SlotDate    string `json:"slot_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email"`
}

// ReservationResult is what a successful booking hands back to the caller.
type ReservationResult struct {
	Reservation      Reservation `json:"reservation"`
	Slot             ClassSlot   `json:"slot"`
	ClassesRemaining int         `json:"classes_remaining"`
}

// SlotRoster is a slot and its confirmed reservations.
type SlotRoster struct {
	Slot         ClassSlot           `json:"slot"`
	Reservations []ReservationDetail `json:"reservations"`
}
