// Package cache provides the keyed permission cache sitting between the
// permissions service and the authoritative store. Entries are resolved
// permission sets per (user, tenant) pair with a TTL; population is
// read-through and invalidation is explicit, triggered by role and
// grant mutations.
//
// Every implementation carries a per-pair generation counter so that an
// invalidation always wins over a concurrently racing populate: a Get
// miss hands the caller the generation it observed, and a later Set
// carrying a stale generation is silently discarded. Failure semantics
// are uniformly fail-closed - a cache error is reported as an error,
// never as a hit, and callers degrade to direct store reads.
package cache
