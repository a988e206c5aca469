package models

import "testing"

// ---------------------------------------------------------------------------
// UserWithDetails helpers
// ---------------------------------------------------------------------------

func sampleUserWithDetails() *UserWithDetails {
	return &UserWithDetails{
		User: User{ID: "u1", Username: "admin", Active: true},
		Roles: []RoleWithAccessRights{
			{
				Role: Role{ID: "r1", RoleName: "Administrator", Active: true},
				AccessRights: []AccessRight{
					{ID: "a1", Description: "Users:Read"},
					{ID: "a2", Description: "Users:Write"},
				},
			},
			{Role: Role{ID: "r2", RoleName: "Auditor", Active: true}},
		},
	}
}

func TestUserWithDetails_RoleIDs(t *testing.T) {
	ids := sampleUserWithDetails().RoleIDs()
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("RoleIDs() = %v, want [r1 r2]", ids)
	}
}

func TestUserWithDetails_RoleIDs_Empty(t *testing.T) {
	u := &UserWithDetails{}
	if ids := u.RoleIDs(); len(ids) != 0 {
		t.Errorf("RoleIDs() = %v, want empty", ids)
	}
}

func TestUserWithDetails_HasAccessRight(t *testing.T) {
	u := sampleUserWithDetails()
	if !u.HasAccessRight("Users:Write") {
		t.Error("HasAccessRight(Users:Write) should be true")
	}
	if u.HasAccessRight("AuditLogs:Read") {
		t.Error("HasAccessRight(AuditLogs:Read) should be false")
	}
}

// ---------------------------------------------------------------------------
// AuditLog.DisplayUsername
// ---------------------------------------------------------------------------

func TestAuditLog_DisplayUsername(t *testing.T) {
	a := &AuditLog{Username: "admin"}
	if got := a.DisplayUsername(); got != "admin" {
		t.Errorf("DisplayUsername() = %q, want admin", got)
	}
}

func TestAuditLog_DisplayUsername_Unknown(t *testing.T) {
	a := &AuditLog{}
	if got := a.DisplayUsername(); got != UnknownUsername {
		t.Errorf("DisplayUsername() = %q, want %q", got, UnknownUsername)
	}
}
