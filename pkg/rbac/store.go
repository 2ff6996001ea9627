package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/access"
)

// Store handles RBAC data persistence. Queries use $N placeholders and run against
// PostgreSQL in production and SQLite in tests.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateOrganization creates a new organization
func (s *Store) CreateOrganization(ctx context.Context, org *Organization) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, created_at) VALUES ($1, $2) RETURNING id`,
		org.Name, now,
	).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.CreatedAt = now
	return nil
}

// GetOrganization retrieves an organization by ID
func (s *Store) GetOrganization(ctx context.Context, orgID int64) (*Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, orgID,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %d: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// OrganizationByName retrieves an organization by its unique name
func (s *Store) OrganizationByName(ctx context.Context, name string) (*Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE name = $1`, name,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return errors.New("role name required")
	}
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO roles (organization_id, name, created_at) VALUES ($1, $2, $3) RETURNING id`,
		role.OrganizationID, role.Name, now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	role.CreatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, created_at FROM roles WHERE id = $1`, roleID,
	).Scan(&role.ID, &role.OrganizationID, &role.Name, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by name within an organization
func (s *Store) GetRoleByName(ctx context.Context, orgID int64, name string) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, created_at FROM roles
		 WHERE organization_id = $1 AND name = $2
		 ORDER BY id ASC
		 LIMIT 1`,
		orgID, name,
	).Scan(&role.ID, &role.OrganizationID, &role.Name, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q in organization %d: %w", name, orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles lists the roles of an organization
func (s *Store) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, name, created_at FROM roles
		 WHERE organization_id = $1
		 ORDER BY name ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GuestRoleID returns the guest role of an organization
func (s *Store) GuestRoleID(ctx context.Context, orgID int64) (int64, error) {
	role, err := s.GetRoleByName(ctx, orgID, GuestRoleName)
	if err != nil {
		return 0, err
	}
	return role.ID, nil
}

// RoleIDsForActor returns the roles linked to the user's item, across all organizations
func (s *Store) RoleIDsForActor(ctx context.Context, actorID int64) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT DISTINCT ir.role_id
		 FROM items i
		 JOIN item2role ir ON ir.item_id = i.id
		 WHERE i.user_id = $1
		 ORDER BY ir.role_id`,
		actorID,
	)
}

// RolesInOrganization returns the subset of roleIDs that belong to orgID
func (s *Store) RolesInOrganization(ctx context.Context, orgID int64, roleIDs []int64) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(2, roleIDs)
	return s.queryIDs(ctx,
		`SELECT id FROM roles WHERE organization_id = $1 AND id IN (`+in+`) ORDER BY id`,
		append([]interface{}{orgID}, args...)...,
	)
}

// CreateItem creates an item together with its organization and role links
func (s *Store) CreateItem(ctx context.Context, item *Item, orgIDs, roleIDs []int64) error {
	if item.Kind == "" {
		item.Kind = ItemKindOther
	}
	if item.Kind == ItemKindUser && item.UserID == nil {
		return errors.New("user items require a user id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO items (kind, user_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		item.Kind, item.UserID, now,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	for _, orgID := range orgIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item2orga (item_id, organization_id) VALUES ($1, $2)`, item.ID, orgID,
		); err != nil {
			return fmt.Errorf("failed to link item to organization %d: %w", orgID, err)
		}
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item2role (item_id, role_id) VALUES ($1, $2)`, item.ID, roleID,
		); err != nil {
			return fmt.Errorf("failed to link item to role %d: %w", roleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item: %w", err)
	}
	item.CreatedAt = now
	return nil
}

// GetItem retrieves an item by ID
func (s *Store) GetItem(ctx context.Context, itemID int64) (*Item, error) {
	return s.scanItem(s.db.QueryRowContext(ctx,
		`SELECT id, kind, user_id, created_at FROM items WHERE id = $1`, itemID,
	), fmt.Sprintf("item %d", itemID))
}

// ItemForUser retrieves the item anchoring a user
func (s *Store) ItemForUser(ctx context.Context, userID int64) (*Item, error) {
	return s.scanItem(s.db.QueryRowContext(ctx,
		`SELECT id, kind, user_id, created_at FROM items WHERE user_id = $1 ORDER BY id LIMIT 1`, userID,
	), fmt.Sprintf("item for user %d", userID))
}

func (s *Store) scanItem(row *sql.Row, what string) (*Item, error) {
	var item Item
	var userID sql.NullInt64
	err := row.Scan(&item.ID, &item.Kind, &userID, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if userID.Valid {
		id := userID.Int64
		item.UserID = &id
	}
	return &item, nil
}

// DeleteItem removes an item with its organization links, role links and
// item-scoped permissions
func (s *Store) DeleteItem(ctx context.Context, itemID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM permissions WHERE item_id = $1`,
		`DELETE FROM item2role WHERE item_id = $1`,
		`DELETE FROM item2orga WHERE item_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, itemID); err != nil {
			return fmt.Errorf("failed to delete item links: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item deletion: %w", err)
	}
	return nil
}

// LinkOrganization links an item to an organization
func (s *Store) LinkOrganization(ctx context.Context, itemID, orgID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO item2orga (item_id, organization_id) VALUES ($1, $2)`, itemID, orgID,
	); err != nil {
		return fmt.Errorf("failed to link organization: %w", err)
	}
	return nil
}

// LinkRole links an item to a role
func (s *Store) LinkRole(ctx context.Context, itemID, roleID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO item2role (item_id, role_id) VALUES ($1, $2)`, itemID, roleID,
	); err != nil {
		return fmt.Errorf("failed to link role: %w", err)
	}
	return nil
}

// UnlinkRole removes every link between an item and a role
func (s *Store) UnlinkRole(ctx context.Context, itemID, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM item2role WHERE item_id = $1 AND role_id = $2`, itemID, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to unlink role: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %d on item %d: %w", roleID, itemID, ErrNotFound)
	}
	return nil
}

// OrganizationsForItem returns the distinct organizations an item is linked to
func (s *Store) OrganizationsForItem(ctx context.Context, itemID int64) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT DISTINCT organization_id FROM item2orga WHERE item_id = $1 ORDER BY organization_id`, itemID,
	)
}

// RolesForItem returns the distinct roles an item is linked to
func (s *Store) RolesForItem(ctx context.Context, itemID int64) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT DISTINCT role_id FROM item2role WHERE item_id = $1 ORDER BY role_id`, itemID,
	)
}

// CreateItemtype creates a new itemtype
func (s *Store) CreateItemtype(ctx context.Context, it *Itemtype) error {
	if strings.TrimSpace(it.Name) == "" {
		return errors.New("itemtype name required")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO itemtypes (organization_id, name) VALUES ($1, $2) RETURNING id`,
		it.OrganizationID, it.Name,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("failed to create itemtype: %w", err)
	}
	return nil
}

// GetItemtype retrieves an itemtype by ID
func (s *Store) GetItemtype(ctx context.Context, itemtypeID int64) (*Itemtype, error) {
	var it Itemtype
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name FROM itemtypes WHERE id = $1`, itemtypeID,
	).Scan(&it.ID, &it.OrganizationID, &it.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("itemtype %d: %w", itemtypeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get itemtype: %w", err)
	}
	return &it, nil
}

// ItemtypeByName retrieves an itemtype by name within an organization
func (s *Store) ItemtypeByName(ctx context.Context, orgID int64, name string) (*Itemtype, error) {
	var it Itemtype
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name FROM itemtypes
		 WHERE organization_id = $1 AND name = $2
		 ORDER BY id LIMIT 1`,
		orgID, name,
	).Scan(&it.ID, &it.OrganizationID, &it.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("itemtype %q in organization %d: %w", name, orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get itemtype: %w", err)
	}
	return &it, nil
}

// CreatePermission stores a grant. The code string is validated first so that
// undecodable permissions never reach the table.
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	if _, err := access.Decode(p.Code); err != nil {
		return fmt.Errorf("invalid permission string: %w", err)
	}
	if p.Code == "" {
		return errors.New("permission string required")
	}

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO permissions (itemtype_id, item_id, role_id, permission, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.ItemtypeID, p.ItemID, p.RoleID, p.Code, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPermission retrieves a permission by ID
func (s *Store) GetPermission(ctx context.Context, permissionID int64) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, itemtype_id, item_id, role_id, permission, created_at FROM permissions WHERE id = $1`,
		permissionID,
	)
	p, err := scanPermission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission %d: %w", permissionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// DeletePermission removes a permission
func (s *Store) DeletePermission(ctx context.Context, permissionID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("permission %d: %w", permissionID, ErrNotFound)
	}
	return nil
}

// ListPermissions lists every grant on an itemtype
func (s *Store) ListPermissions(ctx context.Context, itemtypeID int64) ([]Permission, error) {
	return s.queryPermissions(ctx,
		`SELECT id, itemtype_id, item_id, role_id, permission, created_at FROM permissions
		 WHERE itemtype_id = $1
		 ORDER BY id`,
		itemtypeID,
	)
}

// FindGeneric returns the itemtype-wide grants held by roleIDs
func (s *Store) FindGeneric(ctx context.Context, itemtypeID int64, roleIDs []int64) ([]Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(2, roleIDs)
	return s.queryPermissions(ctx,
		`SELECT id, itemtype_id, item_id, role_id, permission, created_at FROM permissions
		 WHERE itemtype_id = $1 AND item_id IS NULL AND role_id IN (`+in+`)`,
		append([]interface{}{itemtypeID}, args...)...,
	)
}

// FindForItem returns the grants for one item plus the itemtype-wide grants held by roleIDs
func (s *Store) FindForItem(ctx context.Context, itemtypeID, itemID int64, roleIDs []int64) ([]Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(3, roleIDs)
	return s.queryPermissions(ctx,
		`SELECT id, itemtype_id, item_id, role_id, permission, created_at FROM permissions
		 WHERE itemtype_id = $1 AND (item_id = $2 OR item_id IS NULL) AND role_id IN (`+in+`)`,
		append([]interface{}{itemtypeID, itemID}, args...)...,
	)
}

func (s *Store) queryPermissions(ctx context.Context, query string, args ...interface{}) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanPermission scans a permission from a database row
func scanPermission(scanner interface {
	Scan(dest ...interface{}) error
}) (*Permission, error) {
	var p Permission
	var itemID sql.NullInt64
	if err := scanner.Scan(&p.ID, &p.ItemtypeID, &itemID, &p.RoleID, &p.Code, &p.CreatedAt); err != nil {
		return nil, err
	}
	if itemID.Valid {
		id := itemID.Int64
		p.ItemID = &id
	}
	return &p, nil
}

// inClause renders "$start, $start+1, ..." for ids
func inClause(start int, ids []int64) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}
