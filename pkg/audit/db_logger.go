package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{
		db: db,
	}

	// Ensure the access_audit table exists
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure access_audit table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the access_audit table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS access_audit (
		id BIGSERIAL PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		tenant_id BIGINT,
		roles TEXT[],
		action VARCHAR(100),
		resource VARCHAR(100),
		resource_id VARCHAR(255),
		scope VARCHAR(20),
		pattern VARCHAR(255),
		reason TEXT,
		bypass BOOLEAN NOT NULL DEFAULT FALSE,
		read_only BOOLEAN NOT NULL DEFAULT FALSE,
		duration_ms BIGINT,
		request_id VARCHAR(100),
		ip_address VARCHAR(45),
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_access_audit_timestamp ON access_audit(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_access_audit_event_type ON access_audit(event_type);
	CREATE INDEX IF NOT EXISTS idx_access_audit_user_id ON access_audit(user_id);
	CREATE INDEX IF NOT EXISTS idx_access_audit_tenant_id ON access_audit(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_access_audit_resource ON access_audit(resource, action);
	CREATE INDEX IF NOT EXISTS idx_access_audit_status ON access_audit(status);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO access_audit (
			event_id, timestamp, event_type, status,
			user_id, tenant_id, roles,
			action, resource, resource_id, scope,
			pattern, reason, bypass, read_only, duration_ms,
			request_id, ip_address,
			message, error_message, metadata
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18,
			$19, $20, $21
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.EventID, event.Timestamp, event.EventType, event.Status,
		event.UserID, event.TenantID, pq.Array(event.Roles),
		event.Action, event.Resource, event.ResourceID, event.Scope,
		event.Pattern, event.Reason, event.Bypass, event.ReadOnly, event.DurationMS,
		event.RequestID, event.IPAddress,
		event.Message, event.ErrorMessage, metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Search searches audit logs based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	query := `
		SELECT
			id, event_id, timestamp, event_type, status,
			user_id, tenant_id, roles,
			action, resource, resource_id, scope,
			pattern, reason, bypass, read_only, duration_ms,
			request_id, ip_address,
			message, error_message, metadata
		FROM access_audit
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}

	if filter.TenantID != nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argCount)
		args = append(args, *filter.TenantID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.Resource != "" {
		query += fmt.Sprintf(" AND resource = $%d", argCount)
		args = append(args, filter.Resource)
		argCount++
	}

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, filter.Action)
		argCount++
	}

	if filter.Pattern != "" {
		query += fmt.Sprintf(" AND pattern = $%d", argCount)
		args = append(args, filter.Pattern)
		argCount++
	}

	if filter.IPAddress != "" {
		query += fmt.Sprintf(" AND ip_address = $%d", argCount)
		args = append(args, filter.IPAddress)
		argCount++
	}

	if filter.RequestID != "" {
		query += fmt.Sprintf(" AND request_id = $%d", argCount)
		args = append(args, filter.RequestID)
		argCount++
	}

	// Add sorting
	if filter.SortBy != "" {
		order := "DESC"
		if filter.SortOrder == "asc" {
			order = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", filter.SortBy, order)
	} else {
		query += " ORDER BY timestamp DESC"
	}

	// Add pagination
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{
			Metadata: make(map[string]interface{}),
		}

		var metadataJSON []byte

		err := rows.Scan(
			&event.ID, &event.EventID, &event.Timestamp, &event.EventType, &event.Status,
			&event.UserID, &event.TenantID, pq.Array(&event.Roles),
			&event.Action, &event.Resource, &event.ResourceID, &event.Scope,
			&event.Pattern, &event.Reason, &event.Bypass, &event.ReadOnly, &event.DurationMS,
			&event.RequestID, &event.IPAddress,
			&event.Message, &event.ErrorMessage, &metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Get retrieves a single audit event by row id
func (l *DBLogger) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	query := `
		SELECT
			id, event_id, timestamp, event_type, status,
			user_id, tenant_id, roles,
			action, resource, resource_id, scope,
			pattern, reason, bypass, read_only, duration_ms,
			request_id, ip_address,
			message, error_message, metadata
		FROM access_audit
		WHERE id = $1
	`

	event := &AuditEvent{
		Metadata: make(map[string]interface{}),
	}
	var metadataJSON []byte

	err := l.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.EventID, &event.Timestamp, &event.EventType, &event.Status,
		&event.UserID, &event.TenantID, pq.Array(&event.Roles),
		&event.Action, &event.Resource, &event.ResourceID, &event.Scope,
		&event.Pattern, &event.Reason, &event.Bypass, &event.ReadOnly, &event.DurationMS,
		&event.RequestID, &event.IPAddress,
		&event.Message, &event.ErrorMessage, &metadataJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event %d: %w", id, err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return event, nil
}

// GetStats retrieves audit log statistics
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if startTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *startTime)
		argCount++
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.Start = *startTime
	}

	if endTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *endTime)
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	// Total events
	err := l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM access_audit %s", whereClause), args...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	// Events by type
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT event_type, COUNT(*) FROM access_audit %s GROUP BY event_type", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType EventType
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats.EventsByType[eventType] = count
	}

	// Events by status
	rows, err = l.db.QueryContext(ctx, fmt.Sprintf("SELECT status, COUNT(*) FROM access_audit %s GROUP BY status", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status EventStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.EventsByStatus[status] = count
	}

	// Unique users
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT user_id) FROM access_audit %s AND user_id IS NOT NULL", whereClause), args...).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique users: %w", err)
	}

	// Access denials
	deniedClause := whereClause + " AND status = 'denied'"
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM access_audit %s", deniedClause), args...).Scan(&stats.AccessDenials)
	if err != nil {
		return nil, fmt.Errorf("failed to get access denials: %w", err)
	}

	// Bypass grants (emergency and super-admin paths)
	bypassClause := whereClause + " AND bypass = TRUE"
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM access_audit %s", bypassClause), args...).Scan(&stats.BypassGrants)
	if err != nil {
		return nil, fmt.Errorf("failed to get bypass grants: %w", err)
	}

	return stats, nil
}

// Close closes the database logger
func (l *DBLogger) Close() error {
	// We don't close the database connection as it may be shared
	return nil
}
