package domain

import "time"

// Customer is the durable identity behind an external channel identifier.
// Customers created by the pipeline carry a generated placeholder name and a
// random credential that is never valid for interactive login.
type Customer struct {
	ID           string
	ExternalID   string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
