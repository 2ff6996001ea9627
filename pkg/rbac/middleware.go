package rbac

import (
	"context"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/sirupsen/logrus"
)

// ItemtypeLookup resolves an itemtype name inside an organization
type ItemtypeLookup interface {
	ItemtypeByName(ctx context.Context, orgID int64, name string) (*Itemtype, error)
}

type itemtypeContextKey struct{}

// ItemtypeFromContext returns the itemtype resolved by PermissionMiddleware, or nil
func ItemtypeFromContext(ctx context.Context) *Itemtype {
	it, _ := ctx.Value(itemtypeContextKey{}).(*Itemtype)
	return it
}

// PermissionMiddleware guards routes carrying {org_id} and, for item-level
// operations, {item_id} path variables.
type PermissionMiddleware struct {
	evaluator *Evaluator
	itemtypes ItemtypeLookup
	logger    *logrus.Logger
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(evaluator *Evaluator, itemtypes ItemtypeLookup, logger *logrus.Logger) *PermissionMiddleware {
	if logger == nil {
		logger = logrus.New()
	}
	return &PermissionMiddleware{
		evaluator: evaluator,
		itemtypes: itemtypes,
		logger:    logger,
	}
}

// Require creates middleware that lets the request through only when the current
// actor holds op on itemtypeName. Create ignores {item_id}; Read uses it when
// present; Update, Delete and Execute require it.
func (pm *PermissionMiddleware) Require(op access.Type, itemtypeName string) func(http.Handler) http.Handler {
	return pm.require(op, itemtypeName, true)
}

// RequireGeneric checks op against itemtype-wide grants only. It guards records
// that are not items themselves, such as permission rows.
func (pm *PermissionMiddleware) RequireGeneric(op access.Type, itemtypeName string) func(http.Handler) http.Handler {
	return pm.require(op, itemtypeName, false)
}

func (pm *PermissionMiddleware) require(op access.Type, itemtypeName string, itemScoped bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
			if !ok {
				return
			}

			var itemID *int64
			if itemScoped && op != access.Create {
				id, err := httputil.ParseOptionalPathInt64(r, "item_id")
				if err != nil {
					httputil.WriteBadRequest(w, err.Error())
					return
				}
				if id == nil && op != access.Read {
					httputil.WriteBadRequest(w, "missing path parameter: item_id")
					return
				}
				itemID = id
			}

			ctx := r.Context()
			itemtype, err := pm.itemtypes.ItemtypeByName(ctx, orgID, itemtypeName)
			if err != nil {
				pm.writeError(w, r, err)
				return
			}

			err = pm.evaluator.May(ctx, Request{
				Op:             op,
				OrganizationID: orgID,
				ItemtypeID:     itemtype.ID,
				ItemID:         itemID,
			})
			if err != nil {
				pm.writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, itemtypeContextKey{}, itemtype)))
		})
	}
}

func (pm *PermissionMiddleware) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	switch status {
	case http.StatusForbidden:
		httputil.WriteForbidden(w, "Insufficient permissions")
	case http.StatusNotFound:
		httputil.WriteNotFoundError(w, err.Error())
	default:
		httputil.LoggerFromRequest(r).WithError(err).Error("Permission check failed")
		httputil.WriteInternalError(w)
	}
}
