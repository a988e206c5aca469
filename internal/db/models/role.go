// Package models - role.go defines the Role model and its access-right aggregate.
package models

// Role groups access rights. Like users, roles are soft-deleted.
type Role struct {
	ID       string `db:"id"`
	RoleName string `db:"rolename"`
	Active   bool   `db:"active"`
}

// RoleWithAccessRights is a role joined with the access rights it grants
type RoleWithAccessRights struct {
	Role
	AccessRights []AccessRight
}
