package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Decision events
	EventTypeAccessCheck EventType = "access.check"

	// Grant and role mutation events
	EventTypeRoleAssign       EventType = "authz.role_assign"
	EventTypeRoleRevoke       EventType = "authz.role_revoke"
	EventTypePermissionGrant  EventType = "authz.permission_grant"
	EventTypePermissionRevoke EventType = "authz.permission_revoke"

	// Emergency access events
	EventTypeEmergencyOpen  EventType = "authz.emergency_open"
	EventTypeEmergencyClose EventType = "authz.emergency_close"

	// Cache events
	EventTypeCacheInvalidate EventType = "cache.invalidate"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusAllowed EventStatus = "allowed"
	EventStatusDenied  EventStatus = "denied"
	EventStatusError   EventStatus = "error"
	EventStatusSuccess EventStatus = "success"
)

// AuditEvent represents a single audit log entry. Every access decision
// produces one, allow or deny, with the full originating context and
// the evaluation duration.
type AuditEvent struct {
	// Core fields
	ID        int64       `json:"id"`
	EventID   string      `json:"event_id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   *int64   `json:"user_id,omitempty"`
	TenantID *int64   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`

	// Decision context
	Action     string `json:"action,omitempty"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Bypass     bool   `json:"bypass,omitempty"`
	ReadOnly   bool   `json:"read_only,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID   *int64
	TenantID *int64

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Decision filters
	Resource string
	Action   string
	Pattern  string

	// Request context filters
	IPAddress string
	RequestID string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// AuditStats represents statistics about audit logs
type AuditStats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	UniqueUsers    int64                 `json:"unique_users"`
	AccessDenials  int64                 `json:"access_denials"`
	BypassGrants   int64                 `json:"bypass_grants"`
	TimeRange      *TimeRange            `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// Schedule is a cron expression controlling when the sweep runs
	Schedule string
}

// DefaultRetentionPolicy returns a default retention policy (90 days,
// swept nightly)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 90,
		Schedule:      "0 3 * * *",
	}
}
