package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the spans emitted by the evaluator
const TracerName = "github.com/platinummonkey/gatehouse/pkg/rbac"

// DefaultFilterConcurrency bounds the parallel checks of FilterReadable
const DefaultFilterConcurrency = 8

// RoleResolver resolves the roles an actor holds
type RoleResolver interface {
	// RoleIDsForActor returns every role linked to the actor's item, across all organizations
	RoleIDsForActor(ctx context.Context, actorID int64) ([]int64, error)

	// RolesInOrganization returns the subset of roleIDs that belong to orgID
	RolesInOrganization(ctx context.Context, orgID int64, roleIDs []int64) ([]int64, error)

	// GuestRoleID returns the guest role of orgID
	GuestRoleID(ctx context.Context, orgID int64) (int64, error)
}

// PermissionFinder looks up permission grants
type PermissionFinder interface {
	// FindGeneric returns itemtype-wide grants (item_id IS NULL) held by roleIDs
	FindGeneric(ctx context.Context, itemtypeID int64, roleIDs []int64) ([]Permission, error)

	// FindForItem returns grants for itemID plus the itemtype-wide grants held by roleIDs
	FindForItem(ctx context.Context, itemtypeID, itemID int64, roleIDs []int64) ([]Permission, error)
}

// DecisionRecorder receives one observation per evaluated check
type DecisionRecorder interface {
	RecordDecision(op, outcome string, duration time.Duration)
}

// Decision outcomes reported to the DecisionRecorder
const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Request is a single permission check
type Request struct {
	Op             access.Type
	OrganizationID int64
	ItemtypeID     int64
	// ItemID is nil for itemtype-wide checks
	ItemID *int64
}

// Evaluator decides which access types an actor holds on an itemtype or item.
// It keeps no per-call state and is safe for concurrent use.
type Evaluator struct {
	identity          auth.IdentityProvider
	roles             RoleResolver
	perms             PermissionFinder
	adminRoleID       int64
	filterConcurrency int
	logger            *logrus.Logger
	recorder          DecisionRecorder
	tracer            trace.Tracer
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithAdminRoleID sets the global admin role that bypasses all scoping
func WithAdminRoleID(id int64) EvaluatorOption {
	return func(e *Evaluator) {
		e.adminRoleID = id
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDecisionRecorder reports each decision, typically to Prometheus
func WithDecisionRecorder(r DecisionRecorder) EvaluatorOption {
	return func(e *Evaluator) {
		e.recorder = r
	}
}

// WithTracer overrides the global OpenTelemetry tracer
func WithTracer(t trace.Tracer) EvaluatorOption {
	return func(e *Evaluator) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithFilterConcurrency bounds the parallel checks of FilterReadable
func WithFilterConcurrency(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.filterConcurrency = n
		}
	}
}

// NewEvaluator creates a permission evaluator. The admin role id must be supplied
// with WithAdminRoleID; without it no role bypasses scoping.
func NewEvaluator(identity auth.IdentityProvider, roles RoleResolver, perms PermissionFinder, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		identity:          identity,
		roles:             roles,
		perms:             perms,
		filterConcurrency: DefaultFilterConcurrency,
		logger:            logrus.New(),
		tracer:            otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AdminRoleID returns the configured global admin role id
func (e *Evaluator) AdminRoleID() int64 {
	return e.adminRoleID
}

// MayCreate checks the itemtype-wide Create grant. Nothing exists yet, so no item id.
func (e *Evaluator) MayCreate(ctx context.Context, orgID, itemtypeID int64) error {
	return e.May(ctx, Request{Op: access.Create, OrganizationID: orgID, ItemtypeID: itemtypeID})
}

// MayRead checks Read on an item, or on the itemtype as a whole when itemID is nil.
func (e *Evaluator) MayRead(ctx context.Context, orgID, itemtypeID int64, itemID *int64) error {
	return e.May(ctx, Request{Op: access.Read, OrganizationID: orgID, ItemtypeID: itemtypeID, ItemID: itemID})
}

// MayUpdate checks Update on an existing item
func (e *Evaluator) MayUpdate(ctx context.Context, orgID, itemtypeID, itemID int64) error {
	return e.May(ctx, Request{Op: access.Update, OrganizationID: orgID, ItemtypeID: itemtypeID, ItemID: &itemID})
}

// MayDelete checks Delete on an existing item
func (e *Evaluator) MayDelete(ctx context.Context, orgID, itemtypeID, itemID int64) error {
	return e.May(ctx, Request{Op: access.Delete, OrganizationID: orgID, ItemtypeID: itemtypeID, ItemID: &itemID})
}

// MayExecute checks Execute on an existing item
func (e *Evaluator) MayExecute(ctx context.Context, orgID, itemtypeID, itemID int64) error {
	return e.May(ctx, Request{Op: access.Execute, OrganizationID: orgID, ItemtypeID: itemtypeID, ItemID: &itemID})
}

// May returns nil when req.Op is granted, an *AccessDeniedError when it is not, and
// any other error when the decision could not be made.
func (e *Evaluator) May(ctx context.Context, req Request) error {
	start := time.Now()

	granted, err := e.GrantedTypes(ctx, req.OrganizationID, req.ItemtypeID, req.ItemID)
	switch {
	case err != nil && !errors.Is(err, ErrAccessDenied):
		e.record(req.Op, OutcomeError, start)
		return err
	case err != nil || !granted.Has(req.Op):
		e.record(req.Op, OutcomeDenied, start)
		e.logger.WithFields(e.fields(req)).Debug("Access denied")
		return &AccessDeniedError{
			Op:             req.Op,
			OrganizationID: req.OrganizationID,
			ItemtypeID:     req.ItemtypeID,
			ItemID:         req.ItemID,
		}
	}

	e.record(req.Op, OutcomeGranted, start)
	e.logger.WithFields(e.fields(req)).WithField("granted", granted.String()).Debug("Access granted")
	return nil
}

// GrantedTypes returns the access types the current actor holds on the itemtype
// (itemID nil) or on one item. It returns ErrAccessDenied when no grant matches at all.
func (e *Evaluator) GrantedTypes(ctx context.Context, orgID, itemtypeID int64, itemID *int64) (access.Set, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("gatehouse.organization_id", orgID),
		attribute.Int64("gatehouse.itemtype_id", itemtypeID),
	}
	if itemID != nil {
		attrs = append(attrs, attribute.Int64("gatehouse.item_id", *itemID))
	}
	ctx, span := e.tracer.Start(ctx, "rbac.GrantedTypes", trace.WithAttributes(attrs...))
	defer span.End()

	granted, err := e.resolveGrantedTypes(ctx, orgID, itemtypeID, itemID)
	if err != nil && !errors.Is(err, ErrAccessDenied) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return granted, err
}

func (e *Evaluator) resolveGrantedTypes(ctx context.Context, orgID, itemtypeID int64, itemID *int64) (access.Set, error) {
	roleIDs, admin, err := e.effectiveRoles(ctx, orgID)
	if err != nil {
		return 0, err
	}
	if admin {
		return access.All(), nil
	}
	if len(roleIDs) == 0 {
		return 0, ErrAccessDenied
	}

	var rows []Permission
	if itemID == nil {
		rows, err = e.perms.FindGeneric(ctx, itemtypeID, roleIDs)
	} else {
		rows, err = e.perms.FindForItem(ctx, itemtypeID, *itemID, roleIDs)
	}
	if err != nil {
		e.logger.WithError(err).WithField("itemtype_id", itemtypeID).Warn("Permission lookup failed")
		return 0, fmt.Errorf("failed to find permissions: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrAccessDenied
	}

	var concat strings.Builder
	for _, row := range rows {
		concat.WriteString(row.Code)
	}
	granted, err := access.Decode(concat.String())
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"itemtype_id":  itemtypeID,
			"organization": orgID,
			"permissions":  permissionIDs(rows),
		}).Error("Corrupt permission string")
		return 0, fmt.Errorf("permission data for itemtype %d: %w", itemtypeID, err)
	}
	return granted, nil
}

// effectiveRoles returns the role ids that apply inside orgID, or admin=true when the
// actor holds the global admin role.
func (e *Evaluator) effectiveRoles(ctx context.Context, orgID int64) (roleIDs []int64, admin bool, err error) {
	actorID, err := e.identity.CurrentActorID(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			e.logger.WithError(err).Debug("Identity resolution failed, evaluating as guest")
		}
		roleIDs, err = e.guestRoles(ctx, orgID)
		return roleIDs, false, err
	}

	held, err := e.roles.RoleIDsForActor(ctx, actorID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get roles for actor %d: %w", actorID, err)
	}
	held = dedupe(held)

	if e.adminRoleID != 0 {
		for _, id := range held {
			if id == e.adminRoleID {
				return nil, true, nil
			}
		}
	}

	if len(held) > 0 {
		roleIDs, err = e.roles.RolesInOrganization(ctx, orgID, held)
		if err != nil {
			return nil, false, fmt.Errorf("failed to narrow roles to organization %d: %w", orgID, err)
		}
		roleIDs = dedupe(roleIDs)
	}
	if len(roleIDs) == 0 {
		// No role here: the actor gets what an anonymous caller would.
		roleIDs, err = e.guestRoles(ctx, orgID)
	}
	return roleIDs, false, err
}

// guestRoles returns the guest role of orgID. An organization without one yields an
// empty set, which denies everything.
func (e *Evaluator) guestRoles(ctx context.Context, orgID int64) ([]int64, error) {
	guestID, err := e.roles.GuestRoleID(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest role for organization %d: %w", orgID, err)
	}
	return []int64{guestID}, nil
}

func (e *Evaluator) record(op access.Type, outcome string, start time.Time) {
	if e.recorder != nil {
		e.recorder.RecordDecision(op.String(), outcome, time.Since(start))
	}
}

func (e *Evaluator) fields(req Request) logrus.Fields {
	f := logrus.Fields{
		"op":              req.Op.String(),
		"organization_id": req.OrganizationID,
		"itemtype_id":     req.ItemtypeID,
	}
	if req.ItemID != nil {
		f["item_id"] = *req.ItemID
	}
	return f
}

func dedupe(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func permissionIDs(rows []Permission) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids
}
