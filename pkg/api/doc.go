// Package api exposes the permission engine over HTTP.
//
// # Overview
//
// The server mounts three route groups:
//
//   - decision: POST /api/v1/access/check evaluates an access request
//     for the authenticated caller and returns the full decision
//   - resolution: read endpoints for a user's resolved permission set
//     and the fixed role registry
//   - administration: role assignments, permission grants, emergency
//     access, cache invalidation, and the audit log
//
// Administration endpoints are themselves guarded by the engine via
// RequireAccess, so the service applies its own model to its own API.
//
// # Related Packages
//
//   - pkg/engine: decision evaluation
//   - pkg/permissions: permission resolution and mutation
//   - pkg/middleware: caller identity, request IDs, rate limiting
package api
