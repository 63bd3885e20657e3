package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is a versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the permission store schema in apply order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGINT PRIMARY KEY,
					tenant_id BIGINT,
					email VARCHAR(255) NOT NULL DEFAULT '',
					emergency_until TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_accounts_tenant_id ON accounts(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					role_code VARCHAR(64) NOT NULL,
					tenant_id BIGINT,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					valid_from TIMESTAMP,
					valid_until TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_role_assignments_user_id ON role_assignments(user_id);
				CREATE INDEX IF NOT EXISTS idx_role_assignments_tenant_id ON role_assignments(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_role_assignments_role_code ON role_assignments(role_code);
			`,
		},
		{
			Version:     3,
			Description: "Create permission_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_grants (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT,
					role_code VARCHAR(64),
					tenant_id BIGINT,
					pattern VARCHAR(255) NOT NULL,
					granted BOOLEAN NOT NULL DEFAULT TRUE,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					valid_from TIMESTAMP,
					valid_until TIMESTAMP,
					CHECK (user_id IS NOT NULL OR role_code IS NOT NULL)
				);

				CREATE INDEX IF NOT EXISTS idx_permission_grants_user_id ON permission_grants(user_id);
				CREATE INDEX IF NOT EXISTS idx_permission_grants_role_code ON permission_grants(role_code);
				CREATE INDEX IF NOT EXISTS idx_permission_grants_tenant_id ON permission_grants(tenant_id);
			`,
		},
	}
}

// RunMigrations applies all pending migrations, tracking versions in
// schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range Migrations() {
		var applied int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, m.Version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}

		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}
