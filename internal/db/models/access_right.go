// Package models - access_right.go defines the AccessRight model, a named permission such as
// "Users:Write" that roles grant.
package models

// AccessRight represents a single permission
type AccessRight struct {
	ID          string `db:"id"`
	Description string `db:"description"`
}
