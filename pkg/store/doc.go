// Package store is the authoritative persistence layer for accounts,
// role assignments and permission grants. The cache reads through it;
// it is the source of truth whenever the cache misses or fails.
//
// Grants carry optional validity windows and an explicit granted
// boolean; a false grant is a deny record that the permissions service
// weighs above any wildcard allow. Role assignments store registry
// codes only - the registry, not this package, decides whether a code
// is valid.
package store
