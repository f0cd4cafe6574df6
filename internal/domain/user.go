package domain

import "github.com/google/uuid"

// RoleTransitionUser marks accounts whose history transition may be
// re-requested even after both datasets verified.
const RoleTransitionUser = "TRANSITION_USER"

// User is the read-only account projection the sync core consumes. Account
// lifecycle is owned elsewhere; this service never writes users.
type User struct {
	ID        uuid.UUID `json:"uuid"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt int64     `json:"created_at_timestamp"`
	UpdatedAt int64     `json:"updated_at_timestamp"`
}

// HasRole reports whether the account carries the named role.
func (u User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if role == name {
			return true
		}
	}
	return false
}
