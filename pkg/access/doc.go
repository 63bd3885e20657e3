// Package access defines the core vocabulary of the permission engine:
// structured permission patterns, scopes, the per-request access context,
// and the access result returned by every decision.
//
// Permissions are triples of the form:
//
//	<resource>.<action>.<scope>
//
// where scope is one of "global", "tenant" or "own", and resource or
// action (or scope, in stored grants) may be the wildcard "*". Matching
// is structural and segment-exact: "*" substitutes exactly one segment,
// never zero or multiple, so "profiles.*.tenant" matches
// "profiles.read.tenant" but never "profiles.read.own" or
// "profile.read.tenant".
package access
