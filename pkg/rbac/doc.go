// Package rbac decides whether the current actor may create, read, update, delete
// or execute items of a given itemtype inside an organization.
//
// # Model
//
// The data model has five parts:
//
//  1. Organizations: tenancy boundaries. Every role and itemtype belongs to one.
//  2. Roles: named permission holders. Each organization has a "guest" role that
//     anonymous callers (and actors without a role in the organization) fall back to.
//  3. Items: anchors for users and other records, linked to organizations
//     (item2orga) and roles (item2role).
//  4. Itemtypes: resource categories such as "Document" or "Role".
//  5. Permissions: grants of an access code string (for example "CR") to a role on
//     an itemtype, optionally narrowed to a single item.
//
// # Evaluation
//
// For a request (operation, organization, itemtype, optional item) the Evaluator:
//
//	actor := identity.CurrentActorID(ctx)       // error => guest role of the organization
//	held  := roles.RoleIDsForActor(actor)       // every role, across organizations
//	if held contains the admin role: grant all
//	roles := roles.RolesInOrganization(org, held) // empty => guest role
//	rows  := FindGeneric / FindForItem(itemtype, item, roles)
//	granted := union of access.Decode(row.Code)
//
// No matching row is a denial. Denials surface as *AccessDeniedError (which wraps
// ErrAccessDenied); lookup failures and corrupt code strings surface as ordinary
// errors so callers never mistake an outage for a "no".
//
// # Usage
//
//	store := rbac.NewStore(db)
//	ev := rbac.NewEvaluator(auth.ContextIdentity{}, store, store,
//		rbac.WithAdminRoleID(1),
//		rbac.WithLogger(logger),
//	)
//
//	if err := ev.MayUpdate(ctx, orgID, docTypeID, docID); err != nil {
//		return err
//	}
//
//	visible, err := rbac.FilterReadable(ctx, ev, orgID, docTypeID, docs,
//		func(d Doc) int64 { return d.ItemID })
//
// # HTTP
//
// PermissionMiddleware resolves {org_id} and {item_id} path variables and an
// itemtype name, then maps the result to 400, 403, 404 or 500:
//
//	mw := rbac.NewPermissionMiddleware(ev, store, logger)
//	router.Handle("/orgs/{org_id}/documents/{item_id}",
//		mw.Require(access.Update, rbac.ItemtypeDocument)(handler))
//
// # Caching
//
// Role resolution can be wrapped with CachingRoleResolver over an in-process LRU
// (LRURoleCache) or Redis (RedisRoleCache). Permission rows are never cached.
package rbac
