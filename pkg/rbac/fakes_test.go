package rbac

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// fakeIdentity reports a fixed actor, or err when set
type fakeIdentity struct {
	actorID int64
	err     error
}

func (f fakeIdentity) CurrentActorID(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.actorID == 0 {
		return 0, auth.ErrNotAuthenticated
	}
	return f.actorID, nil
}

// memoryGraph is an in-memory RoleResolver and PermissionFinder
type memoryGraph struct {
	mu          sync.Mutex
	actorRoles  map[int64][]int64
	roleOrg     map[int64]int64
	guests      map[int64]int64
	permissions []Permission

	rolesErr error
	permsErr error
	calls    map[string]int
}

func newMemoryGraph() *memoryGraph {
	return &memoryGraph{
		actorRoles: map[int64][]int64{},
		roleOrg:    map[int64]int64{},
		guests:     map[int64]int64{},
		calls:      map[string]int{},
	}
}

func (g *memoryGraph) addRole(orgID, roleID int64) *memoryGraph {
	g.roleOrg[roleID] = orgID
	return g
}

func (g *memoryGraph) addGuest(orgID, roleID int64) *memoryGraph {
	g.addRole(orgID, roleID)
	g.guests[orgID] = roleID
	return g
}

func (g *memoryGraph) assign(actorID int64, roleIDs ...int64) *memoryGraph {
	g.actorRoles[actorID] = append(g.actorRoles[actorID], roleIDs...)
	return g
}

func (g *memoryGraph) grant(itemtypeID int64, itemID *int64, roleID int64, code string) *memoryGraph {
	g.permissions = append(g.permissions, Permission{
		ID:         int64(len(g.permissions) + 1),
		ItemtypeID: itemtypeID,
		ItemID:     itemID,
		RoleID:     roleID,
		Code:       code,
		CreatedAt:  time.Now(),
	})
	return g
}

func (g *memoryGraph) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *memoryGraph) hit(name string) {
	g.mu.Lock()
	g.calls[name]++
	g.mu.Unlock()
}

func (g *memoryGraph) RoleIDsForActor(_ context.Context, actorID int64) ([]int64, error) {
	g.hit("RoleIDsForActor")
	if g.rolesErr != nil {
		return nil, g.rolesErr
	}
	return append([]int64(nil), g.actorRoles[actorID]...), nil
}

func (g *memoryGraph) RolesInOrganization(_ context.Context, orgID int64, roleIDs []int64) ([]int64, error) {
	g.hit("RolesInOrganization")
	if g.rolesErr != nil {
		return nil, g.rolesErr
	}
	var out []int64
	for _, id := range roleIDs {
		if g.roleOrg[id] == orgID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (g *memoryGraph) GuestRoleID(_ context.Context, orgID int64) (int64, error) {
	g.hit("GuestRoleID")
	if g.rolesErr != nil {
		return 0, g.rolesErr
	}
	id, ok := g.guests[orgID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (g *memoryGraph) FindGeneric(_ context.Context, itemtypeID int64, roleIDs []int64) ([]Permission, error) {
	g.hit("FindGeneric")
	if g.permsErr != nil {
		return nil, g.permsErr
	}
	return g.match(itemtypeID, nil, roleIDs), nil
}

func (g *memoryGraph) FindForItem(_ context.Context, itemtypeID, itemID int64, roleIDs []int64) ([]Permission, error) {
	g.hit("FindForItem")
	if g.permsErr != nil {
		return nil, g.permsErr
	}
	return g.match(itemtypeID, &itemID, roleIDs), nil
}

func (g *memoryGraph) match(itemtypeID int64, itemID *int64, roleIDs []int64) []Permission {
	held := map[int64]bool{}
	for _, id := range roleIDs {
		held[id] = true
	}
	var out []Permission
	for _, p := range g.permissions {
		if p.ItemtypeID != itemtypeID || !held[p.RoleID] {
			continue
		}
		if p.ItemID == nil || (itemID != nil && *p.ItemID == *itemID) {
			out = append(out, p)
		}
	}
	return out
}

// recordingRecorder captures decisions and cache lookups
type recordingRecorder struct {
	mu        sync.Mutex
	decisions []string
	hits      int
	misses    int
}

func (r *recordingRecorder) RecordDecision(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, op+":"+outcome)
}

func (r *recordingRecorder) RecordCacheHit(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *recordingRecorder) RecordCacheMiss(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

var errBackend = errors.New("connection refused")

func int64Ptr(v int64) *int64 { return &v }
