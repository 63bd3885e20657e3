// Package permissions resolves the effective permission set of a user
// within a tenant. It merges direct grants with role-derived grants,
// applies explicit denies, and serves results through the tiered cache
// with read-through population on miss.
package permissions
