package models

import "time"

// ClassPackage is a purchased bundle of prepaid classes.
type ClassPackage struct {
	ID               int64     `json:"id"`
	ClientID         int64     `json:"client_id"`
	Name             string    `json:"name"`
	ClassesTotal     int       `json:"classes_total"`
	ClassesRemaining int       `json:"classes_remaining"`
	PurchasedAt      time.Time `json:"purchased_at"`
	ExpiresAt        string    `json:"expires_at"`
	Active           bool      `json:"active"`
}

// EligibleOn reports whether the package can pay for a class booked on today (YYYY-MM-DD).
func (p *ClassPackage) EligibleOn(today string) bool {
	return p.Active && p.ClassesRemaining > 0 && p.ExpiresAt >= today
}
