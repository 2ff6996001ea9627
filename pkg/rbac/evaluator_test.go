package rbac

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminRoleID int64 = 1
	actorAlice      int64 = 10
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEvaluator(identity fakeIdentity, g *memoryGraph, opts ...EvaluatorOption) *Evaluator {
	opts = append([]EvaluatorOption{WithAdminRoleID(testAdminRoleID), WithLogger(quietLogger())}, opts...)
	return NewEvaluator(identity, g, g, opts...)
}

// allOps runs every May* operation against the same target
func allOps(ctx context.Context, ev *Evaluator, orgID, itemtypeID, itemID int64) map[access.Type]error {
	return map[access.Type]error{
		access.Create:  ev.MayCreate(ctx, orgID, itemtypeID),
		access.Read:    ev.MayRead(ctx, orgID, itemtypeID, &itemID),
		access.Update:  ev.MayUpdate(ctx, orgID, itemtypeID, itemID),
		access.Delete:  ev.MayDelete(ctx, orgID, itemtypeID, itemID),
		access.Execute: ev.MayExecute(ctx, orgID, itemtypeID, itemID),
	}
}

func TestEvaluator_NoMatchingRowsDeniesEverything(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).addGuest(1, 2).assign(actorAlice, 42)
	// grants on another itemtype and for another role must not count
	g.grant(8, nil, 42, "CRUDX").grant(7, nil, 43, "CRUDX")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	for op, err := range allOps(context.Background(), ev, 1, 7, 99) {
		require.Error(t, err, op.String())
		assert.True(t, IsAccessDenied(err), op.String())

		var denied *AccessDeniedError
		require.True(t, errors.As(err, &denied))
		assert.Equal(t, op, denied.Op)
		assert.Equal(t, int64(1), denied.OrganizationID)
		assert.Equal(t, int64(7), denied.ItemtypeID)
	}
}

func TestEvaluator_AdminShortCircuit(t *testing.T) {
	// The admin role lives in organization 99; the checks target organization 2.
	g := newMemoryGraph().addRole(99, testAdminRoleID).assign(actorAlice, testAdminRoleID)
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	for op, err := range allOps(context.Background(), ev, 2, 3, 4) {
		assert.NoError(t, err, op.String())
	}
	assert.Zero(t, g.count("FindGeneric"))
	assert.Zero(t, g.count("FindForItem"))
	assert.Zero(t, g.count("RolesInOrganization"))

	granted, err := ev.GrantedTypes(context.Background(), 2, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, access.All(), granted)
}

func TestEvaluator_AdminRoleUnsetGrantsNothingExtra(t *testing.T) {
	g := newMemoryGraph().addRole(99, testAdminRoleID).assign(actorAlice, testAdminRoleID)
	ev := NewEvaluator(fakeIdentity{actorID: actorAlice}, g, g, WithLogger(quietLogger()))

	assert.True(t, IsAccessDenied(ev.MayCreate(context.Background(), 2, 3)))
}

func TestEvaluator_TenantIsolation(t *testing.T) {
	g := newMemoryGraph().
		addRole(1, 42).
		addRole(2, 50).
		addGuest(2, 51).
		assign(actorAlice, 42)
	// itemtype 20 belongs to organization 2; the grant names role 42 anyway
	g.grant(20, nil, 42, "R")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	err := ev.MayRead(context.Background(), 2, 20, int64Ptr(5))
	assert.True(t, IsAccessDenied(err))
}

func TestEvaluator_TenantIsolationWithoutGuestRole(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42)
	g.grant(20, nil, 42, "R")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	err := ev.MayRead(context.Background(), 2, 20, int64Ptr(5))
	assert.True(t, IsAccessDenied(err))
	assert.Zero(t, g.count("FindForItem"))
}

func TestEvaluator_GuestFallback(t *testing.T) {
	g := newMemoryGraph().addGuest(1, 2)
	g.grant(5, nil, 2, "R")
	ev := newTestEvaluator(fakeIdentity{}, g)
	ctx := context.Background()

	assert.NoError(t, ev.MayRead(ctx, 1, 5, nil))
	assert.True(t, IsAccessDenied(ev.MayCreate(ctx, 1, 5)))
	assert.Zero(t, g.count("RoleIDsForActor"))
}

func TestEvaluator_IdentityErrorEvaluatesAsGuest(t *testing.T) {
	g := newMemoryGraph().addGuest(1, 2)
	g.grant(5, nil, 2, "R")
	ev := newTestEvaluator(fakeIdentity{err: errors.New("session store unavailable")}, g)

	assert.NoError(t, ev.MayRead(context.Background(), 1, 5, nil))
}

func TestEvaluator_ActorWithoutRolesInOrganizationEvaluatesAsGuest(t *testing.T) {
	g := newMemoryGraph().addRole(2, 60).addGuest(1, 2).assign(actorAlice, 60)
	g.grant(5, nil, 2, "R")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	assert.NoError(t, ev.MayRead(context.Background(), 1, 5, nil))
	assert.True(t, IsAccessDenied(ev.MayCreate(context.Background(), 1, 5)))
}

func TestEvaluator_MissingGuestRoleDenies(t *testing.T) {
	g := newMemoryGraph()
	ev := newTestEvaluator(fakeIdentity{}, g)

	err := ev.MayRead(context.Background(), 1, 5, nil)
	assert.True(t, IsAccessDenied(err))
}

func TestEvaluator_UnionOfCodes(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).addRole(1, 43).assign(actorAlice, 42, 43)
	g.grant(7, nil, 42, "C").grant(7, nil, 43, "R")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)
	ctx := context.Background()

	assert.NoError(t, ev.MayCreate(ctx, 1, 7))
	assert.NoError(t, ev.MayRead(ctx, 1, 7, nil))
	assert.True(t, IsAccessDenied(ev.MayUpdate(ctx, 1, 7, 99)))

	granted, err := ev.GrantedTypes(ctx, 1, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, "CR", granted.String())
}

func TestEvaluator_DocumentScenario(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).addGuest(1, 2).assign(actorAlice, 42)
	g.grant(7, nil, 42, "CR")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)
	ctx := context.Background()

	assert.NoError(t, ev.MayCreate(ctx, 1, 7))
	assert.NoError(t, ev.MayRead(ctx, 1, 7, int64Ptr(99)))

	err := ev.MayUpdate(ctx, 1, 7, 99)
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))
	assert.Contains(t, err.Error(), "item 99")
}

func TestEvaluator_ItemGrantsAddToGeneric(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42)
	g.grant(7, nil, 42, "R").grant(7, int64Ptr(99), 42, "UD")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)
	ctx := context.Background()

	granted, err := ev.GrantedTypes(ctx, 1, 7, int64Ptr(99))
	require.NoError(t, err)
	assert.Equal(t, "RUD", granted.String())

	assert.NoError(t, ev.MayUpdate(ctx, 1, 7, 99))
	assert.True(t, IsAccessDenied(ev.MayUpdate(ctx, 1, 7, 100)))

	// item grants never widen the itemtype-wide view
	assert.True(t, IsAccessDenied(ev.MayDelete(ctx, 1, 7, 100)))
	granted, err = ev.GrantedTypes(ctx, 1, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, "R", granted.String())
}

func TestEvaluator_CorruptCodeIsNotADenial(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42)
	g.grant(7, nil, 42, "CZ")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	err := ev.MayCreate(context.Background(), 1, 7)
	require.Error(t, err)
	assert.False(t, IsAccessDenied(err))
	assert.True(t, errors.Is(err, access.ErrUnknownAccessCode))
	assert.Equal(t, 500, StatusForError(err))
}

func TestEvaluator_CollaboratorErrorsPropagate(t *testing.T) {
	tests := []struct {
		name     string
		identity fakeIdentity
		setup    func(*memoryGraph)
	}{
		{
			name:     "permission lookup",
			identity: fakeIdentity{actorID: actorAlice},
			setup:    func(g *memoryGraph) { g.permsErr = errBackend },
		},
		{
			name:     "role lookup",
			identity: fakeIdentity{actorID: actorAlice},
			setup:    func(g *memoryGraph) { g.rolesErr = errBackend },
		},
		{
			name:     "guest role lookup",
			identity: fakeIdentity{},
			setup:    func(g *memoryGraph) { g.rolesErr = errBackend },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newMemoryGraph().addRole(1, 42).addGuest(1, 2).assign(actorAlice, 42)
			g.grant(7, nil, 42, "CRUDX")
			tt.setup(g)
			ev := newTestEvaluator(tt.identity, g)

			for op, err := range allOps(context.Background(), ev, 1, 7, 99) {
				require.Error(t, err, op.String())
				assert.False(t, IsAccessDenied(err), op.String())
				assert.True(t, errors.Is(err, errBackend), op.String())
			}
		})
	}
}

func TestEvaluator_DuplicateRolesAreHarmless(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42, 42, 42)
	g.grant(7, nil, 42, "RR").grant(7, nil, 42, "R")
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g)

	granted, err := ev.GrantedTypes(context.Background(), 1, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, access.NewSet(access.Read), granted)
}

func TestEvaluator_RecordsDecisions(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42)
	g.grant(7, nil, 42, "C")
	rec := &recordingRecorder{}
	ev := newTestEvaluator(fakeIdentity{actorID: actorAlice}, g, WithDecisionRecorder(rec))
	ctx := context.Background()

	_ = ev.MayCreate(ctx, 1, 7)
	_ = ev.MayRead(ctx, 1, 7, nil)
	g.permsErr = errBackend
	_ = ev.MayCreate(ctx, 1, 7)

	assert.Equal(t, []string{"create:granted", "read:denied", "create:error"}, rec.decisions)
}

func TestEvaluator_Options(t *testing.T) {
	g := newMemoryGraph()
	ev := NewEvaluator(fakeIdentity{}, g, g,
		WithAdminRoleID(7),
		WithFilterConcurrency(0),
		WithLogger(nil),
		WithTracer(nil),
	)

	assert.Equal(t, int64(7), ev.AdminRoleID())
	assert.Equal(t, DefaultFilterConcurrency, ev.filterConcurrency)
	assert.NotNil(t, ev.logger)
	assert.NotNil(t, ev.tracer)

	ev = NewEvaluator(fakeIdentity{}, g, g, WithFilterConcurrency(3))
	assert.Equal(t, 3, ev.filterConcurrency)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, 200, StatusForError(nil))
	assert.Equal(t, 403, StatusForError(&AccessDeniedError{Op: access.Read}))
	assert.Equal(t, 404, StatusForError(ErrNotFound))
	assert.Equal(t, 500, StatusForError(errBackend))
}
