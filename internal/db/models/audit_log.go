// Package models - audit_log.go defines the AuditLog model: one append-only record of a
// successful mutation, capturing the table touched, the operation, the actor and the time.
package models

import "time"

// Audit operations written for mutating requests
const (
	OperationInsert = "INSERT"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// UnknownUsername is shown when an audit record's actor no longer resolves to a user
const UnknownUsername = "Unknown"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID        string
	TableName string    // lower-case logical table, e.g. "users"
	Operation string    // INSERT, UPDATE, DELETE
	ChangedAt time.Time // always UTC
	UserID    string    // nil UUID when no actor was available
	Username  string    // read side only, joined from users
}

// DisplayUsername returns the joined username or UnknownUsername
func (a *AuditLog) DisplayUsername() string {
	if a.Username == "" {
		return UnknownUsername
	}
	return a.Username
}
