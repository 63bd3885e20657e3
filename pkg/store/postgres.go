package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// SQLStore implements Store over database/sql. Production runs it
// against PostgreSQL (lib/pq); tests run the same queries against
// SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Open connects to PostgreSQL, verifies connectivity and applies
// migrations.
func Open(ctx context.Context, postgresURL string, maxConns int) (*SQLStore, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// DB exposes the underlying handle for health checks and the audit
// logger.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// GetAccount returns the account row for a user, or ErrNotFound.
func (s *SQLStore) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	query := `
		SELECT id, tenant_id, email, emergency_until, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var acct Account
	var tenantID sql.NullInt64
	var emergencyUntil sql.NullTime

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&acct.ID,
		&tenantID,
		&acct.Email,
		&emergencyUntil,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if tenantID.Valid {
		id := tenantID.Int64
		acct.TenantID = &id
	}
	if emergencyUntil.Valid {
		t := emergencyUntil.Time
		acct.EmergencyUntil = &t
	}
	return &acct, nil
}

// GetRoleAssignments returns the user's currently valid role
// assignments for the tenant. Assignments without a tenant apply
// everywhere.
func (s *SQLStore) GetRoleAssignments(ctx context.Context, userID int64, tenantID *int64) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_code, tenant_id, granted_by, granted_at, valid_from, valid_until
		FROM role_assignments
		WHERE user_id = $1
		  AND (tenant_id = $2 OR tenant_id IS NULL)
		  AND (valid_from IS NULL OR valid_from <= $3)
		  AND (valid_until IS NULL OR valid_until > $3)
		ORDER BY granted_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, tenantID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var tid, grantedBy sql.NullInt64
		var validFrom, validUntil sql.NullTime

		err := rows.Scan(&a.ID, &a.UserID, &a.RoleCode, &tid, &grantedBy, &a.GrantedAt, &validFrom, &validUntil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}

		if tid.Valid {
			v := tid.Int64
			a.TenantID = &v
		}
		if grantedBy.Valid {
			v := grantedBy.Int64
			a.GrantedBy = &v
		}
		if validFrom.Valid {
			v := validFrom.Time
			a.ValidFrom = &v
		}
		if validUntil.Valid {
			v := validUntil.Time
			a.ValidUntil = &v
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// GetRolePermissions returns the currently valid grants attached to the
// given role codes.
func (s *SQLStore) GetRolePermissions(ctx context.Context, roleCodes []string) ([]PermissionGrant, error) {
	if len(roleCodes) == 0 {
		return nil, nil
	}

	// Build the IN clause; role code lists are registry-sized, never
	// user-controlled.
	query := `
		SELECT id, user_id, role_code, tenant_id, pattern, granted, granted_by, granted_at, valid_from, valid_until
		FROM permission_grants
		WHERE role_code IN (`
	args := make([]interface{}, 0, len(roleCodes)+1)
	for i, code := range roleCodes {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("$%d", i+1)
		args = append(args, code)
	}
	query += fmt.Sprintf(`)
		  AND (valid_from IS NULL OR valid_from <= $%d)
		  AND (valid_until IS NULL OR valid_until > $%d)
		ORDER BY id ASC
	`, len(roleCodes)+1, len(roleCodes)+1)
	args = append(args, time.Now())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows)
}

// GetUserPermissions returns the currently valid grants attached
// directly to the user for the tenant.
func (s *SQLStore) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]PermissionGrant, error) {
	query := `
		SELECT id, user_id, role_code, tenant_id, pattern, granted, granted_by, granted_at, valid_from, valid_until
		FROM permission_grants
		WHERE user_id = $1
		  AND (tenant_id = $2 OR tenant_id IS NULL)
		  AND (valid_from IS NULL OR valid_from <= $3)
		  AND (valid_until IS NULL OR valid_until > $3)
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, tenantID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows)
}

// AssignRole attaches a registry role to a user.
func (s *SQLStore) AssignRole(ctx context.Context, assignment *RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (user_id, role_code, tenant_id, granted_by, granted_at, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		assignment.UserID,
		assignment.RoleCode,
		assignment.TenantID,
		assignment.GrantedBy,
		now,
		assignment.ValidFrom,
		assignment.ValidUntil,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	assignment.GrantedAt = now
	return nil
}

// RevokeRole removes a role assignment.
func (s *SQLStore) RevokeRole(ctx context.Context, assignmentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM role_assignments WHERE id = $1`, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// GrantPermission attaches a direct grant or explicit deny.
func (s *SQLStore) GrantPermission(ctx context.Context, grant *PermissionGrant) error {
	query := `
		INSERT INTO permission_grants (user_id, role_code, tenant_id, pattern, granted, granted_by, granted_at, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		grant.UserID,
		grant.RoleCode,
		grant.TenantID,
		grant.Pattern,
		grant.Granted,
		grant.GrantedBy,
		now,
		grant.ValidFrom,
		grant.ValidUntil,
	).Scan(&grant.ID)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	grant.GrantedAt = now
	return nil
}

// RevokePermission removes a grant.
func (s *SQLStore) RevokePermission(ctx context.Context, grantID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM permission_grants WHERE id = $1`, grantID)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	return nil
}

// SetEmergencyAccess opens or closes a user's emergency-access window.
func (s *SQLStore) SetEmergencyAccess(ctx context.Context, userID int64, until *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET emergency_until = $1, updated_at = $2 WHERE id = $3`,
		until, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set emergency access: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("account %d: %w", userID, ErrNotFound)
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanGrants(rows *sql.Rows) ([]PermissionGrant, error) {
	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		var userID, tenantID, grantedBy sql.NullInt64
		var roleCode sql.NullString
		var validFrom, validUntil sql.NullTime

		err := rows.Scan(&g.ID, &userID, &roleCode, &tenantID, &g.Pattern, &g.Granted, &grantedBy, &g.GrantedAt, &validFrom, &validUntil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission grant: %w", err)
		}

		if userID.Valid {
			v := userID.Int64
			g.UserID = &v
		}
		if roleCode.Valid {
			v := roleCode.String
			g.RoleCode = &v
		}
		if tenantID.Valid {
			v := tenantID.Int64
			g.TenantID = &v
		}
		if grantedBy.Valid {
			v := grantedBy.Int64
			g.GrantedBy = &v
		}
		if validFrom.Valid {
			v := validFrom.Time
			g.ValidFrom = &v
		}
		if validUntil.Valid {
			v := validUntil.Time
			g.ValidUntil = &v
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
