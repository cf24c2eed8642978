package models

// ClientSummary is a row of the admin client listing.
type ClientSummary struct {
	ID               int64  `json:"id"`
	DisplayName      string `json:"display_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	ActivePackages   int    `json:"active_packages"`
	ClassesAvailable int    `json:"classes_available"`
}

type ClientDetail struct {
	Client       Identity            `json:"client"`
	Packages     []ClassPackage      `json:"packages"`
	Reservations []ReservationDetail `json:"reservations"`
}
