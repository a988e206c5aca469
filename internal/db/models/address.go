// Package models - address.go defines the Address model referenced by users.
package models

// Address represents a postal address
type Address struct {
	ID         string `db:"id"`
	Street     string `db:"street"`
	PostalCode string `db:"postalcode"`
}
