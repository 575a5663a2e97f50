package permission

import (
	"errors"
	"fmt"
)

// DefaultHierarchy lists roles from most to least privileged.
var DefaultHierarchy = []string{"super_admin", "admin", "manager", "employee", "viewer", "user"}

var ErrDuplicateRole = errors.New("permission: duplicate role in hierarchy")

// Hierarchy ranks roles. Rank 0 is the most privileged.
type Hierarchy struct {
	order []string
	rank  map[string]int
}

// NewHierarchy ranks roles in the order given, highest first.
func NewHierarchy(roles []string) (Hierarchy, error) {
	h := Hierarchy{order: append([]string(nil), roles...), rank: make(map[string]int, len(roles))}
	for i, r := range roles {
		if r == "" {
			return Hierarchy{}, ErrEmptyName
		}
		if _, dup := h.rank[r]; dup {
			return Hierarchy{}, fmt.Errorf("%w: %s", ErrDuplicateRole, r)
		}
		h.rank[r] = i
	}
	return h, nil
}

// Rank returns the position of role; unknown roles report false.
func (h Hierarchy) Rank(role string) (int, bool) {
	r, ok := h.rank[role]
	return r, ok
}

// AtLeast reports whether role ranks at or above min. Unknown roles are
// never at least anything.
func (h Hierarchy) AtLeast(role, min string) bool {
	r, ok := h.rank[role]
	if !ok {
		return false
	}
	m, ok := h.rank[min]
	if !ok {
		return false
	}
	return r <= m
}

// Roles returns the ranked roles, highest first.
func (h Hierarchy) Roles() []string {
	return append([]string(nil), h.order...)
}
