package model

import "time"

// User mirrors the users table.  Identity is owned by the external
// provider; this row only carries the profile, the suspension window
// and the cached payment gateway customer reference.
//
// Fields:
//
//	ID                – primary key, equal to the identity token subject.
//	FirstName         – display name.
//	PhoneNumber       – contact number.
//	Email             – contact address.
//	IsSuspended       – suspension flag.
//	SuspensionEndDate – end of the suspension window (nullable).
//	GatewayCustomerID – payment gateway customer reference, empty if not created yet.
type User struct {
	ID                uint64
	FirstName         string
	PhoneNumber       string
	Email             string
	IsSuspended       bool
	SuspensionEndDate *time.Time
	GatewayCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SuspendedAt reports whether the suspension window covers now.
func (u User) SuspendedAt(now time.Time) bool {
	return u.IsSuspended && u.SuspensionEndDate != nil && u.SuspensionEndDate.After(now)
}
