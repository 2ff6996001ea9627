package api

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Store is the persistence the handlers need; *rbac.Store implements it.
type Store interface {
	rbac.ItemtypeLookup

	GetItemtype(ctx context.Context, itemtypeID int64) (*rbac.Itemtype, error)

	GetRole(ctx context.Context, roleID int64) (*rbac.Role, error)
	ListRoles(ctx context.Context, orgID int64) ([]rbac.Role, error)

	GetItem(ctx context.Context, itemID int64) (*rbac.Item, error)
	OrganizationsForItem(ctx context.Context, itemID int64) ([]int64, error)
	RolesForItem(ctx context.Context, itemID int64) ([]int64, error)
	LinkRole(ctx context.Context, itemID, roleID int64) error
	UnlinkRole(ctx context.Context, itemID, roleID int64) error

	CreatePermission(ctx context.Context, p *rbac.Permission) error
	GetPermission(ctx context.Context, permissionID int64) (*rbac.Permission, error)
	DeletePermission(ctx context.Context, permissionID int64) error
	ListPermissions(ctx context.Context, itemtypeID int64) ([]rbac.Permission, error)
}

// RoleCacheInvalidator drops cached role sets after role links change
type RoleCacheInvalidator interface {
	InvalidateActor(ctx context.Context, actorID int64) error
}

// AccessResponse reports what the caller may do on an itemtype or item
type AccessResponse struct {
	OrganizationID int64         `json:"organization_id"`
	ItemtypeID     int64         `json:"itemtype_id"`
	ItemID         *int64        `json:"item_id,omitempty"`
	Granted        []access.Type `json:"granted"`
	Code           string        `json:"code"`
}

// CreatePermissionRequest is the body of POST /orgs/{org_id}/permissions
type CreatePermissionRequest struct {
	ItemtypeID int64  `json:"itemtype_id"`
	ItemID     *int64 `json:"item_id,omitempty"`
	RoleID     int64  `json:"role_id"`
	Permission string `json:"permission"`
}

// LinkRoleRequest is the body of POST /orgs/{org_id}/items/{item_id}/roles
type LinkRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

// ItemRolesResponse lists the roles linked to an item
type ItemRolesResponse struct {
	ItemID  int64   `json:"item_id"`
	RoleIDs []int64 `json:"role_ids"`
}
