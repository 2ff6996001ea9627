package rbac

import (
	"time"
)

// Well-known itemtype names. Every organization carries its own itemtype rows
// with these names; the evaluator only ever sees their numeric ids.
const (
	ItemtypeUser       = "User"
	ItemtypeRole       = "Role"
	ItemtypePermission = "Permission"
	ItemtypeAuthority  = "Authority"
	ItemtypeItemtype   = "Itemtype"
	ItemtypeDocument   = "Document"
)

// GuestRoleName is the name of the per-organization fallback role used for
// unauthenticated callers.
const GuestRoleName = "guest"

// Item kinds
const (
	ItemKindUser  = "user"
	ItemKindGroup = "group"
	ItemKindOther = "other"
)

// Organization is a tenancy boundary
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Role is a named permission holder scoped to one organization
type Role struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsGuest reports whether r is its organization's guest role
func (r Role) IsGuest() bool {
	return r.Name == GuestRoleName
}

// Item anchors a concrete user or non-user record to its organizations and roles.
// UserID is set only for items of kind "user".
type Item struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	UserID    *int64    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Item2Orga links an item to an organization
type Item2Orga struct {
	ItemID         int64 `json:"item_id"`
	OrganizationID int64 `json:"organization_id"`
}

// Item2Role links an item to a role
type Item2Role struct {
	ItemID int64 `json:"item_id"`
	RoleID int64 `json:"role_id"`
}

// Itemtype names a resource category inside an organization
type Itemtype struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
}

// Permission grants the access types in Code to a role for an itemtype.
// A nil ItemID makes the grant itemtype-wide.
type Permission struct {
	ID         int64     `json:"id"`
	ItemtypeID int64     `json:"itemtype_id"`
	ItemID     *int64    `json:"item_id,omitempty"`
	RoleID     int64     `json:"role_id"`
	Code       string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsGeneric reports whether p applies to the whole itemtype
func (p Permission) IsGeneric() bool {
	return p.ItemID == nil
}
