// Package audit records changes to the permission model: grants, revocations
// and role links. Events go to one or more sinks (the process log, a JSON-lines
// file, a PostgreSQL table) through the Logger interface.
//
//	logger := audit.NewMultiLogger(audit.NewLogrusLogger(log), dbLogger)
//	event := audit.NewEvent(r, audit.EventTypePermissionGrant, orgID)
//	event.ResourceType = audit.ResourceTypePermission
//	event.ResourceID = strconv.FormatInt(perm.ID, 10)
//	logger.Log(ctx, event)
package audit
