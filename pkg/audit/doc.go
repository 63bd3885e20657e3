// Package audit records every access decision for security, compliance,
// and forensics.
//
// # Overview
//
// Every engine decision, allow or deny, produces one audit event with
// the originating access context, the matched or missing permission
// pattern, and the evaluation duration. Grant and role mutations and
// emergency-access changes are recorded too.
//
// # Event Types
//
// Decisions: access.check
// Mutations: authz.role_assign, authz.role_revoke, authz.permission_grant, authz.permission_revoke
// Emergency: authz.emergency_open, authz.emergency_close
// Cache: cache.invalidate
//
// # Usage Example
//
// Record a decision:
//
//	event := audit.DecisionEvent(actx, result, scope, matched, duration, nil)
//	logger.Log(ctx, event)
//
// Search audit logs:
//
//	results, err := store.Search(ctx, audit.SearchFilter{
//		StartTime:  &start,
//		EndTime:    &end,
//		UserID:     &userID,
//		EventTypes: []audit.EventType{audit.EventTypeAccessCheck},
//	})
//
// # Retention Policy
//
// Default: 90 days active retention, swept nightly by RetentionSweeper.
// Export: JSON, CSV, NDJSON formats for external analysis
//
// # Related Packages
//
//   - pkg/engine: produces decision events
//   - pkg/permissions: produces mutation events
//   - pkg/api: serves the audit query endpoints
package audit
