package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Store is the subset of *rbac.Store the seeder writes through
type Store interface {
	OrganizationByName(ctx context.Context, name string) (*rbac.Organization, error)
	CreateOrganization(ctx context.Context, org *rbac.Organization) error

	GetRoleByName(ctx context.Context, orgID int64, name string) (*rbac.Role, error)
	CreateRole(ctx context.Context, role *rbac.Role) error

	ItemtypeByName(ctx context.Context, orgID int64, name string) (*rbac.Itemtype, error)
	CreateItemtype(ctx context.Context, it *rbac.Itemtype) error

	ListPermissions(ctx context.Context, itemtypeID int64) ([]rbac.Permission, error)
	CreatePermission(ctx context.Context, p *rbac.Permission) error

	ItemForUser(ctx context.Context, userID int64) (*rbac.Item, error)
	CreateItem(ctx context.Context, item *rbac.Item, orgIDs, roleIDs []int64) error
	OrganizationsForItem(ctx context.Context, itemID int64) ([]int64, error)
	RolesForItem(ctx context.Context, itemID int64) ([]int64, error)
	LinkOrganization(ctx context.Context, itemID, orgID int64) error
	LinkRole(ctx context.Context, itemID, roleID int64) error
}

// Result counts the records Apply created
type Result struct {
	Organizations int
	Roles         int
	Itemtypes     int
	Permissions   int
	Users         int
	Links         int
}

type seeder struct {
	store  Store
	logger *logrus.Logger
	result Result

	orgIDs  map[string]int64
	roleIDs map[string]map[string]int64
}

// Apply validates doc and creates whatever it declares that does not exist yet
func Apply(ctx context.Context, store Store, doc *Document, logger *logrus.Logger) (Result, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := doc.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid seed document: %w", err)
	}

	s := &seeder{
		store:   store,
		logger:  logger,
		orgIDs:  make(map[string]int64),
		roleIDs: make(map[string]map[string]int64),
	}
	for i := range doc.Organizations {
		if err := s.organization(ctx, &doc.Organizations[i]); err != nil {
			return s.result, err
		}
	}
	for _, u := range doc.Users {
		if err := s.user(ctx, u); err != nil {
			return s.result, err
		}
	}

	logger.WithFields(logrus.Fields{
		"organizations": s.result.Organizations,
		"roles":         s.result.Roles,
		"itemtypes":     s.result.Itemtypes,
		"permissions":   s.result.Permissions,
		"users":         s.result.Users,
		"links":         s.result.Links,
	}).Info("Seed applied")
	return s.result, nil
}

func (s *seeder) organization(ctx context.Context, o *Organization) error {
	org, err := s.store.OrganizationByName(ctx, o.Name)
	if errors.Is(err, rbac.ErrNotFound) {
		org = &rbac.Organization{Name: o.Name}
		if err = s.store.CreateOrganization(ctx, org); err == nil {
			s.result.Organizations++
		}
	}
	if err != nil {
		return fmt.Errorf("organization %q: %w", o.Name, err)
	}
	s.orgIDs[o.Name] = org.ID

	roles := make(map[string]int64)
	names := o.Roles
	if o.GuestRole {
		names = append([]string{rbac.GuestRoleName}, names...)
	}
	for _, name := range names {
		role, err := s.store.GetRoleByName(ctx, org.ID, name)
		if errors.Is(err, rbac.ErrNotFound) {
			role = &rbac.Role{OrganizationID: org.ID, Name: name}
			if err = s.store.CreateRole(ctx, role); err == nil {
				s.result.Roles++
			}
		}
		if err != nil {
			return fmt.Errorf("organization %q: role %q: %w", o.Name, name, err)
		}
		roles[name] = role.ID
	}
	s.roleIDs[o.Name] = roles

	itemtypes := make(map[string]int64)
	for _, name := range o.Itemtypes {
		it, err := s.store.ItemtypeByName(ctx, org.ID, name)
		if errors.Is(err, rbac.ErrNotFound) {
			it = &rbac.Itemtype{OrganizationID: org.ID, Name: name}
			if err = s.store.CreateItemtype(ctx, it); err == nil {
				s.result.Itemtypes++
			}
		}
		if err != nil {
			return fmt.Errorf("organization %q: itemtype %q: %w", o.Name, name, err)
		}
		itemtypes[name] = it.ID
	}

	for _, g := range o.Permissions {
		if err := s.grant(ctx, itemtypes[g.Itemtype], roles[g.Role], g.Permission); err != nil {
			return fmt.Errorf("organization %q: grant %s to %q on %q: %w", o.Name, g.Permission, g.Role, g.Itemtype, err)
		}
	}
	return nil
}

func (s *seeder) grant(ctx context.Context, itemtypeID, roleID int64, code string) error {
	existing, err := s.store.ListPermissions(ctx, itemtypeID)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.IsGeneric() && p.RoleID == roleID && p.Code == code {
			return nil
		}
	}
	if err := s.store.CreatePermission(ctx, &rbac.Permission{ItemtypeID: itemtypeID, RoleID: roleID, Code: code}); err != nil {
		return err
	}
	s.result.Permissions++
	return nil
}

func (s *seeder) user(ctx context.Context, u User) error {
	var orgIDs, roleIDs []int64
	for _, m := range u.Memberships {
		orgIDs = append(orgIDs, s.orgIDs[m.Organization])
		for _, role := range m.Roles {
			roleIDs = append(roleIDs, s.roleIDs[m.Organization][role])
		}
	}

	item, err := s.store.ItemForUser(ctx, u.UserID)
	if errors.Is(err, rbac.ErrNotFound) {
		item = &rbac.Item{Kind: rbac.ItemKindUser, UserID: &u.UserID}
		if err := s.store.CreateItem(ctx, item, dedupe(orgIDs), dedupe(roleIDs)); err != nil {
			return fmt.Errorf("user %d: %w", u.UserID, err)
		}
		s.result.Users++
		return nil
	}
	if err != nil {
		return fmt.Errorf("user %d: %w", u.UserID, err)
	}

	linkedOrgs, err := s.store.OrganizationsForItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("user %d: %w", u.UserID, err)
	}
	for _, id := range missing(dedupe(orgIDs), linkedOrgs) {
		if err := s.store.LinkOrganization(ctx, item.ID, id); err != nil {
			return fmt.Errorf("user %d: %w", u.UserID, err)
		}
		s.result.Links++
	}

	linkedRoles, err := s.store.RolesForItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("user %d: %w", u.UserID, err)
	}
	for _, id := range missing(dedupe(roleIDs), linkedRoles) {
		if err := s.store.LinkRole(ctx, item.ID, id); err != nil {
			return fmt.Errorf("user %d: %w", u.UserID, err)
		}
		s.result.Links++
	}
	return nil
}

// missing returns the ids in want that are not in have
func missing(want, have []int64) []int64 {
	present := make(map[int64]bool, len(have))
	for _, id := range have {
		present[id] = true
	}
	var out []int64
	for _, id := range want {
		if !present[id] {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
