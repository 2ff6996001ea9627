package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// AuthzHandlers serves the permission administration endpoints
type AuthzHandlers struct {
	store       Store
	evaluator   *rbac.Evaluator
	perms       *rbac.PermissionMiddleware
	invalidator RoleCacheInvalidator
	audit       audit.Logger
	logger      *logrus.Logger
}

// NewAuthzHandlers creates the handlers. invalidator may be nil when role sets
// are not cached; a nil auditLogger discards audit events.
func NewAuthzHandlers(store Store, evaluator *rbac.Evaluator, invalidator RoleCacheInvalidator, auditLogger audit.Logger, logger *logrus.Logger) *AuthzHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &AuthzHandlers{
		store:       store,
		evaluator:   evaluator,
		perms:       rbac.NewPermissionMiddleware(evaluator, store, logger),
		invalidator: invalidator,
		audit:       auditLogger,
		logger:      logger,
	}
}

// RegisterRoutes registers the authz routes on router
func (h *AuthzHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/itemtypes/{itemtype_id}/access", h.GetAccess).Methods("GET")

	router.Handle("/orgs/{org_id}/roles",
		h.perms.Require(access.Read, rbac.ItemtypeRole)(http.HandlerFunc(h.ListRoles))).Methods("GET")
	router.Handle("/orgs/{org_id}/items/{item_id}/roles",
		h.perms.Require(access.Read, rbac.ItemtypeRole)(http.HandlerFunc(h.ListItemRoles))).Methods("GET")
	router.Handle("/orgs/{org_id}/items/{item_id}/roles",
		h.perms.Require(access.Update, rbac.ItemtypeRole)(http.HandlerFunc(h.LinkRole))).Methods("POST")
	router.Handle("/orgs/{org_id}/items/{item_id}/roles/{role_id}",
		h.perms.Require(access.Update, rbac.ItemtypeRole)(http.HandlerFunc(h.UnlinkRole))).Methods("DELETE")

	router.Handle("/orgs/{org_id}/permissions",
		h.perms.RequireGeneric(access.Create, rbac.ItemtypePermission)(http.HandlerFunc(h.CreatePermission))).Methods("POST")
	router.Handle("/orgs/{org_id}/permissions",
		h.perms.RequireGeneric(access.Read, rbac.ItemtypePermission)(http.HandlerFunc(h.ListPermissions))).Methods("GET")
	router.Handle("/orgs/{org_id}/permissions/{permission_id}",
		h.perms.RequireGeneric(access.Read, rbac.ItemtypePermission)(http.HandlerFunc(h.GetPermission))).Methods("GET")
	router.Handle("/orgs/{org_id}/permissions/{permission_id}",
		h.perms.RequireGeneric(access.Delete, rbac.ItemtypePermission)(http.HandlerFunc(h.DeletePermission))).Methods("DELETE")
}

// GetAccess handles GET /orgs/{org_id}/itemtypes/{itemtype_id}/access.
// It reports the caller's own rights, so a denial is an empty grant rather than 403.
func (h *AuthzHandlers) GetAccess(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	itemtypeID, ok := httputil.ParsePathInt64OrError(w, r, "itemtype_id")
	if !ok {
		return
	}
	itemID, err := httputil.ParseOptionalQueryInt64(r, "item_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.itemtypeInOrg(ctx, orgID, itemtypeID); err != nil {
		h.writeError(w, r, err)
		return
	}

	granted, err := h.evaluator.GrantedTypes(ctx, orgID, itemtypeID, itemID)
	if err != nil && !rbac.IsAccessDenied(err) {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, AccessResponse{
		OrganizationID: orgID,
		ItemtypeID:     itemtypeID,
		ItemID:         itemID,
		Granted:        granted.Types(),
		Code:           access.Encode(granted),
	})
}

// ListRoles handles GET /orgs/{org_id}/roles
func (h *AuthzHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	roles, err := h.store.ListRoles(r.Context(), orgID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httputil.WriteSuccess(w, roles)
}

// ListItemRoles handles GET /orgs/{org_id}/items/{item_id}/roles
func (h *AuthzHandlers) ListItemRoles(w http.ResponseWriter, r *http.Request) {
	orgID, itemID, ok := h.parseItemPath(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.itemInOrg(ctx, orgID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}

	roleIDs, err := h.store.RolesForItem(ctx, itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Links into other organizations stay private to those organizations.
	visible := make([]int64, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		role, err := h.store.GetRole(ctx, roleID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if role.OrganizationID == orgID {
			visible = append(visible, roleID)
		}
	}

	httputil.WriteSuccess(w, ItemRolesResponse{ItemID: itemID, RoleIDs: visible})
}

// LinkRole handles POST /orgs/{org_id}/items/{item_id}/roles
func (h *AuthzHandlers) LinkRole(w http.ResponseWriter, r *http.Request) {
	orgID, itemID, ok := h.parseItemPath(w, r)
	if !ok {
		return
	}

	var req LinkRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	ctx := r.Context()
	if err := h.itemInOrg(ctx, orgID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if ok := h.roleInOrg(w, r, orgID, req.RoleID); !ok {
		return
	}

	if err := h.store.LinkRole(ctx, itemID, req.RoleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(ctx, r, itemID)
	h.recordRoleChange(r, audit.EventTypeRoleLink, orgID, itemID, req.RoleID)

	httputil.WriteCreated(w, rbac.Item2Role{ItemID: itemID, RoleID: req.RoleID})
}

// UnlinkRole handles DELETE /orgs/{org_id}/items/{item_id}/roles/{role_id}
func (h *AuthzHandlers) UnlinkRole(w http.ResponseWriter, r *http.Request) {
	orgID, itemID, ok := h.parseItemPath(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.itemInOrg(ctx, orgID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if ok := h.roleInOrg(w, r, orgID, roleID); !ok {
		return
	}

	if err := h.store.UnlinkRole(ctx, itemID, roleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(ctx, r, itemID)
	h.recordRoleChange(r, audit.EventTypeRoleUnlink, orgID, itemID, roleID)

	httputil.WriteNoContent(w)
}

// CreatePermission handles POST /orgs/{org_id}/permissions
func (h *AuthzHandlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req CreatePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ItemtypeID <= 0 || req.RoleID <= 0 {
		httputil.WriteBadRequest(w, "itemtype_id and role_id are required")
		return
	}
	if req.Permission == "" {
		httputil.WriteBadRequest(w, "permission is required")
		return
	}
	if _, err := access.Decode(req.Permission); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.itemtypeInOrg(ctx, orgID, req.ItemtypeID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if ok := h.roleInOrg(w, r, orgID, req.RoleID); !ok {
		return
	}
	if req.ItemID != nil {
		if *req.ItemID <= 0 {
			httputil.WriteBadRequest(w, "item_id must be positive")
			return
		}
		if err := h.itemInOrg(ctx, orgID, *req.ItemID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	perm := &rbac.Permission{
		ItemtypeID: req.ItemtypeID,
		ItemID:     req.ItemID,
		RoleID:     req.RoleID,
		Code:       req.Permission,
	}
	if err := h.store.CreatePermission(ctx, perm); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.recordPermissionChange(r, audit.EventTypePermissionGrant, orgID, perm, "Permission granted")

	httputil.WriteCreated(w, perm)
}

// ListPermissions handles GET /orgs/{org_id}/permissions?itemtype_id=.
// Item-scoped grants are only listed when the caller may read the item they target.
func (h *AuthzHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	itemtypeID, err := httputil.ParseOptionalQueryInt64(r, "itemtype_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if itemtypeID == nil {
		httputil.WriteBadRequest(w, "missing query parameter: itemtype_id")
		return
	}

	ctx := r.Context()
	if err := h.itemtypeInOrg(ctx, orgID, *itemtypeID); err != nil {
		h.writeError(w, r, err)
		return
	}

	perms, err := h.store.ListPermissions(ctx, *itemtypeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var scoped []rbac.Permission
	for _, p := range perms {
		if !p.IsGeneric() {
			scoped = append(scoped, p)
		}
	}
	readable, err := rbac.FilterReadable(ctx, h.evaluator, orgID, *itemtypeID, scoped,
		func(p rbac.Permission) int64 { return *p.ItemID })
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	allowed := make(map[int64]bool, len(readable))
	for _, p := range readable {
		allowed[p.ID] = true
	}

	out := make([]rbac.Permission, 0, len(perms))
	for _, p := range perms {
		if p.IsGeneric() || allowed[p.ID] {
			out = append(out, p)
		}
	}
	httputil.WriteSuccess(w, out)
}

// GetPermission handles GET /orgs/{org_id}/permissions/{permission_id}
func (h *AuthzHandlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	_, perm, ok := h.loadPermission(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, perm)
}

// DeletePermission handles DELETE /orgs/{org_id}/permissions/{permission_id}
func (h *AuthzHandlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	orgID, perm, ok := h.loadPermission(w, r)
	if !ok {
		return
	}

	if err := h.store.DeletePermission(r.Context(), perm.ID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.recordPermissionChange(r, audit.EventTypePermissionRevoke, orgID, perm, "Permission revoked")
	httputil.WriteNoContent(w)
}

// loadPermission fetches {permission_id} and hides rows that belong to
// another organization's itemtypes.
func (h *AuthzHandlers) loadPermission(w http.ResponseWriter, r *http.Request) (int64, *rbac.Permission, bool) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return 0, nil, false
	}
	permID, ok := httputil.ParsePathInt64OrError(w, r, "permission_id")
	if !ok {
		return 0, nil, false
	}

	ctx := r.Context()
	perm, err := h.store.GetPermission(ctx, permID)
	if err != nil {
		h.writeError(w, r, err)
		return 0, nil, false
	}
	if err := h.itemtypeInOrg(ctx, orgID, perm.ItemtypeID); err != nil {
		if rbac.StatusForError(err) == http.StatusNotFound {
			err = fmt.Errorf("permission %d: %w", permID, rbac.ErrNotFound)
		}
		h.writeError(w, r, err)
		return 0, nil, false
	}
	return orgID, perm, true
}

func (h *AuthzHandlers) parseItemPath(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return 0, 0, false
	}
	itemID, ok := httputil.ParsePathInt64OrError(w, r, "item_id")
	if !ok {
		return 0, 0, false
	}
	return orgID, itemID, true
}

func (h *AuthzHandlers) itemtypeInOrg(ctx context.Context, orgID, itemtypeID int64) error {
	it, err := h.store.GetItemtype(ctx, itemtypeID)
	if err != nil {
		return err
	}
	if it.OrganizationID != orgID {
		return fmt.Errorf("itemtype %d: %w", itemtypeID, rbac.ErrNotFound)
	}
	return nil
}

func (h *AuthzHandlers) itemInOrg(ctx context.Context, orgID, itemID int64) error {
	orgIDs, err := h.store.OrganizationsForItem(ctx, itemID)
	if err != nil {
		return err
	}
	for _, id := range orgIDs {
		if id == orgID {
			return nil
		}
	}
	return fmt.Errorf("item %d: %w", itemID, rbac.ErrNotFound)
}

// roleInOrg writes 400 when the role exists elsewhere and 404 when it does not exist.
func (h *AuthzHandlers) roleInOrg(w http.ResponseWriter, r *http.Request, orgID, roleID int64) bool {
	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	if role.OrganizationID != orgID {
		httputil.WriteBadRequest(w, fmt.Sprintf("role %d does not belong to organization %d", roleID, orgID))
		return false
	}
	return true
}

// invalidate drops the cached role set of the user behind itemID. Failures are
// logged; entries expire on their own.
func (h *AuthzHandlers) invalidate(ctx context.Context, r *http.Request, itemID int64) {
	if h.invalidator == nil {
		return
	}
	item, err := h.store.GetItem(ctx, itemID)
	if err != nil {
		httputil.LoggerFromRequest(r).WithError(err).WithField("item_id", itemID).Warn("Failed to load item for cache invalidation")
		return
	}
	if item.UserID == nil {
		return
	}
	if err := h.invalidator.InvalidateActor(ctx, *item.UserID); err != nil {
		httputil.LoggerFromRequest(r).WithError(err).WithField("actor_id", *item.UserID).Warn("Failed to invalidate role cache")
	}
}

func (h *AuthzHandlers) recordPermissionChange(r *http.Request, eventType audit.EventType, orgID int64, perm *rbac.Permission, message string) {
	event := audit.NewEvent(r, eventType, orgID)
	event.ResourceType = audit.ResourceTypePermission
	event.ResourceID = strconv.FormatInt(perm.ID, 10)
	event.Message = message
	event.Metadata["itemtype_id"] = perm.ItemtypeID
	event.Metadata["role_id"] = perm.RoleID
	event.Metadata["permission"] = perm.Code
	if perm.ItemID != nil {
		event.Metadata["item_id"] = *perm.ItemID
	}
	h.record(r, event)
}

func (h *AuthzHandlers) recordRoleChange(r *http.Request, eventType audit.EventType, orgID, itemID, roleID int64) {
	event := audit.NewEvent(r, eventType, orgID)
	event.ResourceType = audit.ResourceTypeItem
	event.ResourceID = strconv.FormatInt(itemID, 10)
	event.Metadata["role_id"] = roleID
	h.record(r, event)
}

// record never fails the request; the change has already been committed.
func (h *AuthzHandlers) record(r *http.Request, event *audit.Event) {
	if err := h.audit.Log(r.Context(), event); err != nil {
		httputil.LoggerFromRequest(r).WithError(err).WithField("event_type", event.EventType).Error("Failed to write audit event")
	}
}

func (h *AuthzHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch rbac.StatusForError(err) {
	case http.StatusForbidden:
		httputil.WriteForbidden(w, "Insufficient permissions")
	case http.StatusNotFound:
		httputil.WriteNotFoundError(w, err.Error())
	default:
		httputil.LoggerFromRequest(r).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
