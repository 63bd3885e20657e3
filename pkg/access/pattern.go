package access

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Scope represents the breadth at which a permission applies.
type Scope string

const (
	// ScopeGlobal applies platform-wide.
	ScopeGlobal Scope = "global"
	// ScopeTenant applies within a single tenant.
	ScopeTenant Scope = "tenant"
	// ScopeOwn applies only to the caller's own resources.
	ScopeOwn Scope = "own"
)

// Valid reports whether the scope is one of the known scope values.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeTenant, ScopeOwn:
		return true
	}
	return false
}

// Segment is one position of a permission pattern: either an exact
// lowercase slug or the wildcard. The zero value is an empty exact
// segment and never matches anything.
type Segment struct {
	value    string
	wildcard bool
}

// Exact returns a segment matching only the given value.
func Exact(value string) Segment {
	return Segment{value: value}
}

// Any returns the wildcard segment, matching exactly one arbitrary value.
func Any() Segment {
	return Segment{wildcard: true}
}

// IsWildcard reports whether the segment is the wildcard.
func (s Segment) IsWildcard() bool {
	return s.wildcard
}

// Value returns the exact value, or "*" for the wildcard.
func (s Segment) Value() string {
	if s.wildcard {
		return "*"
	}
	return s.value
}

// Matches reports whether the segment accepts the given concrete value.
func (s Segment) Matches(value string) bool {
	if s.wildcard {
		return value != ""
	}
	return s.value != "" && s.value == value
}

func (s Segment) String() string {
	return s.Value()
}

// Pattern is a structured permission triple. Stored grants may carry the
// wildcard in any position; requested patterns built by the engine are
// always concrete.
type Pattern struct {
	Resource Segment
	Action   Segment
	Scope    Segment
}

// NewPattern builds a concrete pattern from resource, action and scope.
func NewPattern(resource, action string, scope Scope) Pattern {
	return Pattern{
		Resource: Exact(resource),
		Action:   Exact(action),
		Scope:    Exact(string(scope)),
	}
}

// ParsePattern parses a dotted permission string into a Pattern. The
// string must have exactly three non-empty segments; each segment is
// either a lowercase slug or "*".
func ParsePattern(s string) (Pattern, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Pattern{}, fmt.Errorf("%w: %q must have exactly 3 segments", ErrInvalidPattern, s)
	}

	segs := make([]Segment, 3)
	for i, part := range parts {
		if part == "*" {
			segs[i] = Any()
			continue
		}
		if !isSlug(part) {
			return Pattern{}, fmt.Errorf("%w: segment %q is not a lowercase slug", ErrInvalidPattern, part)
		}
		segs[i] = Exact(part)
	}

	// The scope segment, when concrete, must be a known scope.
	if !segs[2].IsWildcard() && !Scope(segs[2].Value()).Valid() {
		return Pattern{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidPattern, segs[2].Value())
	}

	return Pattern{Resource: segs[0], Action: segs[1], Scope: segs[2]}, nil
}

// MustParsePattern is like ParsePattern but panics on error. Intended for
// compile-time constant patterns in registries and tests.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the dotted form of the pattern.
func (p Pattern) String() string {
	return p.Resource.Value() + "." + p.Action.Value() + "." + p.Scope.Value()
}

// MarshalJSON emits the dotted form, so resolved permission sets
// serialize as pattern strings rather than opaque segment structs.
func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses the dotted form.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePattern(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// IsConcrete reports whether the pattern has no wildcard segments.
func (p Pattern) IsConcrete() bool {
	return !p.Resource.IsWildcard() && !p.Action.IsWildcard() && !p.Scope.IsWildcard()
}

// Matches reports whether p, treated as a stored grant, satisfies the
// requested pattern. Matching is segment-wise structural comparison; a
// wildcard in a requested segment is accepted by a wildcard grant
// segment but not by an exact one.
func (p Pattern) Matches(requested Pattern) bool {
	return segmentCovers(p.Resource, requested.Resource) &&
		segmentCovers(p.Action, requested.Action) &&
		segmentCovers(p.Scope, requested.Scope)
}

// SameFamily reports whether two patterns cover overlapping grants: they
// name the same resource (or either side is a resource wildcard) and
// overlap on action and scope. Used for deny precedence, where an
// explicit deny suppresses any broader wildcard allow in its family.
func (p Pattern) SameFamily(other Pattern) bool {
	return segmentOverlaps(p.Resource, other.Resource) &&
		segmentOverlaps(p.Action, other.Action) &&
		segmentOverlaps(p.Scope, other.Scope)
}

func segmentCovers(grant, requested Segment) bool {
	if grant.IsWildcard() {
		return true
	}
	if requested.IsWildcard() {
		return false
	}
	return grant.Matches(requested.Value())
}

func segmentOverlaps(a, b Segment) bool {
	if a.IsWildcard() || b.IsWildcard() {
		return true
	}
	return a.Value() == b.Value()
}

// Candidates returns the patterns to test for a concrete request, in
// priority order: exact match first, then action wildcard, scope
// wildcard, and both.
func Candidates(resource, action string, scope Scope) []Pattern {
	s := string(scope)
	return []Pattern{
		{Resource: Exact(resource), Action: Exact(action), Scope: Exact(s)},
		{Resource: Exact(resource), Action: Any(), Scope: Exact(s)},
		{Resource: Exact(resource), Action: Exact(action), Scope: Any()},
		{Resource: Exact(resource), Action: Any(), Scope: Any()},
	}
}

// PlatformCandidates extends Candidates with the platform-level wildcard
// tested for admin-only resources.
func PlatformCandidates(resource, action string, scope Scope) []Pattern {
	return append(Candidates(resource, action, scope),
		Pattern{Resource: Exact("platform"), Action: Any(), Scope: Exact(string(ScopeGlobal))},
	)
}

// isSlug reports whether the segment consists of lowercase letters,
// digits, underscores or hyphens.
func isSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
