// Package admin implements the HTTP handlers of the user management API: users, roles,
// access rights, addresses and the read side of the audit log.
package admin

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// AccessRightResponse is the JSON form of an access right
type AccessRightResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// AddressResponse is the JSON form of an address
type AddressResponse struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
}

// RoleResponse is the JSON form of a role with the access rights it grants
type RoleResponse struct {
	ID           string                `json:"id"`
	RoleName     string                `json:"roleName"`
	Active       bool                  `json:"active"`
	AccessRights []AccessRightResponse `json:"accessRights"`
}

// UserResponse is the JSON form of a user with its address and active roles
type UserResponse struct {
	ID        string           `json:"id"`
	Username  string           `json:"username"`
	FirstName string           `json:"firstName"`
	LastName  string           `json:"lastName"`
	AddressID *string          `json:"addressId"`
	Address   *AddressResponse `json:"address"`
	Active    bool             `json:"active"`
	Roles     []RoleResponse   `json:"roles"`
}

// AuditLogResponse is the JSON form of an audit record
type AuditLogResponse struct {
	ID        string `json:"id"`
	TableName string `json:"tableName"`
	Operation string `json:"operation"`
	ChangedAt string `json:"changedAt"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

func toAccessRightResponse(ar models.AccessRight) AccessRightResponse {
	return AccessRightResponse{ID: ar.ID, Description: ar.Description}
}

func toAddressResponse(a *models.Address) *AddressResponse {
	if a == nil {
		return nil
	}
	return &AddressResponse{ID: a.ID, Street: a.Street, PostalCode: a.PostalCode}
}

func toRoleResponse(r *models.RoleWithAccessRights) RoleResponse {
	rights := make([]AccessRightResponse, 0, len(r.AccessRights))
	for _, ar := range r.AccessRights {
		rights = append(rights, toAccessRightResponse(ar))
	}
	return RoleResponse{ID: r.ID, RoleName: r.RoleName, Active: r.Active, AccessRights: rights}
}

func toUserResponse(u *models.UserWithDetails) UserResponse {
	roles := make([]RoleResponse, 0, len(u.Roles))
	for i := range u.Roles {
		roles = append(roles, toRoleResponse(&u.Roles[i]))
	}
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AddressID: u.AddressID,
		Address:   toAddressResponse(u.Address),
		Active:    u.Active,
		Roles:     roles,
	}
}

func toAuditLogResponse(log *models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:        log.ID,
		TableName: log.TableName,
		Operation: log.Operation,
		ChangedAt: log.ChangedAt.UTC().Format(time.RFC3339),
		UserID:    log.UserID,
		Username:  log.DisplayUsername(),
	}
}

func toAuditLogResponses(logs []*models.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		out = append(out, toAuditLogResponse(log))
	}
	return out
}

// invalidID returns the first entry of ids that is not a UUID
func invalidID(ids []string) (string, bool) {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return id, true
		}
	}
	return "", false
}

// isUUID reports whether s parses as a UUID
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// trimmed returns a copy of p with surrounding whitespace removed, or nil
func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}
