package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// MigrationsTable records applied migration versions
const MigrationsTable = "rbac_migrations"

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations (PostgreSQL dialect)
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, name)
				);

				CREATE INDEX IF NOT EXISTS idx_roles_organization_id ON roles(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create items and link tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS items (
					id BIGSERIAL PRIMARY KEY,
					kind VARCHAR(32) NOT NULL,
					user_id BIGINT UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS item2orga (
					item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS item2role (
					item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_item2orga_item_id ON item2orga(item_id);
				CREATE INDEX IF NOT EXISTS idx_item2role_item_id ON item2role(item_id);
			`,
		},
		{
			Version:     3,
			Description: "Create itemtypes and permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS itemtypes (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					UNIQUE(organization_id, name)
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					itemtype_id BIGINT NOT NULL REFERENCES itemtypes(id) ON DELETE CASCADE,
					item_id BIGINT REFERENCES items(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission VARCHAR(16) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_itemtype_role ON permissions(itemtype_id, role_id);
				CREATE INDEX IF NOT EXISTS idx_permissions_itemtype_item ON permissions(itemtype_id, item_id);
			`,
		},
	}
}

// LatestMigrationVersion is the version a fully migrated database reports
func LatestMigrationVersion() int {
	latest := 0
	for _, m := range GetMigrations() {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// RunMigrations applies pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+MigrationsTable+` (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM "+MigrationsTable+" ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+MigrationsTable+" (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
