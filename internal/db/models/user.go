// Package models - user.go defines the User model for administrative accounts, along with the
// aggregate used when a user is read back with its address and role memberships.
package models

// User represents a user account. Users are never hard-deleted; Active=false hides them.
type User struct {
	ID        string  `db:"id"`
	Username  string  `db:"username"`
	FirstName string  `db:"firstname"`
	LastName  string  `db:"lastname"`
	AddressID *string `db:"adress_id"` // Nullable
	Active    bool    `db:"active"`
}

// UserWithDetails is a user joined with its address and active roles
type UserWithDetails struct {
	User
	Address *Address
	Roles   []RoleWithAccessRights
}

// RoleIDs returns the ids of the roles attached to the user
func (u *UserWithDetails) RoleIDs() []string {
	ids := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// HasAccessRight reports whether any of the user's roles grants the given access right description
func (u *UserWithDetails) HasAccessRight(description string) bool {
	for _, r := range u.Roles {
		for _, ar := range r.AccessRights {
			if ar.Description == description {
				return true
			}
		}
	}
	return false
}
