// Package api exposes the permission model over HTTP.
//
// All routes live under /api/v1 and are scoped to an organization:
//
//	GET    /orgs/{org_id}/itemtypes/{itemtype_id}/access?item_id=   caller's granted access types
//	GET    /orgs/{org_id}/roles                                     list roles (Read on Role)
//	GET    /orgs/{org_id}/items/{item_id}/roles                     roles linked to an item (Read on Role)
//	POST   /orgs/{org_id}/items/{item_id}/roles                     link a role (Update on Role)
//	DELETE /orgs/{org_id}/items/{item_id}/roles/{role_id}           unlink a role (Update on Role)
//	POST   /orgs/{org_id}/permissions                               grant (Create on Permission)
//	GET    /orgs/{org_id}/permissions?itemtype_id=                  list grants (Read on Permission)
//	GET    /orgs/{org_id}/permissions/{permission_id}               get a grant (Read on Permission)
//	DELETE /orgs/{org_id}/permissions/{permission_id}               revoke (Delete on Permission)
//
// The acting user comes from the X-Actor-ID header set by the upstream
// authenticator; requests without it are evaluated as the organization's guest.
// Denials map to 403, unknown records to 404 and lookup failures to 500.
package api
