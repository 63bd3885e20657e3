// Package middleware provides HTTP middleware for the access service:
// caller identity extraction, request IDs, structured request logging,
// and rate limiting (in-memory and Redis-backed).
//
// The service sits behind the platform gateway, which authenticates the
// session and forwards the caller's user ID in the X-User-ID header.
// CallerMiddleware trusts that header; requests without it proceed as
// unauthenticated and are denied by the permission engine itself, so
// every rejection is audited uniformly.
package middleware
