package permission

import (
	"errors"
	"fmt"
	"sort"
)

// Wildcard, when listed as a role's permission, grants every permission in
// the table.
const Wildcard = "*"

var ErrUnknownRole = errors.New("permission: role not in hierarchy")

// Definition is the declarative source of a Table.
type Definition struct {
	// MaxBits is the mask width; zero selects 64.
	MaxBits int `yaml:"max_bits" toml:"max_bits"`
	// Hierarchy lists roles highest first.
	Hierarchy []string `yaml:"hierarchy" toml:"hierarchy"`
	// Roles maps each role to the permissions it holds.
	Roles map[string][]string `yaml:"roles" toml:"roles"`
	// StepUpRequired lists permissions that need an active step-up.
	StepUpRequired []string `yaml:"step_up_required" toml:"step_up_required"`
}

// Table is the frozen permission table.
type Table struct {
	registry  *Registry
	hierarchy Hierarchy
	masks     map[string]Mask
	stepUp    map[string]struct{}
}

// Build registers every permission, computes role masks and freezes the
// result. Roles in Roles must appear in Hierarchy.
func Build(def Definition) (*Table, error) {
	width := def.MaxBits
	if width == 0 {
		width = 64
	}
	reg, err := NewRegistry(width)
	if err != nil {
		return nil, err
	}
	hierarchy, err := NewHierarchy(def.Hierarchy)
	if err != nil {
		return nil, err
	}

	// Registration order is sorted so bit assignment does not depend on map
	// iteration.
	var names []string
	seen := map[string]struct{}{}
	for _, perms := range def.Roles {
		for _, p := range perms {
			if p == Wildcard {
				continue
			}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				names = append(names, p)
			}
		}
	}
	for _, p := range def.StepUpRequired {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			names = append(names, p)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := reg.Register(n); err != nil {
			return nil, err
		}
	}
	reg.Freeze()

	t := &Table{
		registry:  reg,
		hierarchy: hierarchy,
		masks:     make(map[string]Mask, len(def.Roles)),
		stepUp:    make(map[string]struct{}, len(def.StepUpRequired)),
	}
	for role, perms := range def.Roles {
		if _, ok := hierarchy.Rank(role); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		if contains(perms, Wildcard) {
			t.masks[role] = reg.All()
			continue
		}
		m, err := reg.MaskOf(perms)
		if err != nil {
			return nil, err
		}
		t.masks[role] = m
	}
	for _, p := range def.StepUpRequired {
		t.stepUp[p] = struct{}{}
	}
	return t, nil
}

// Allowed reports whether role holds permission. Unknown roles and unknown
// permissions are denied.
func (t *Table) Allowed(role, permission string) bool {
	bit, ok := t.registry.Bit(permission)
	if !ok {
		return false
	}
	m, ok := t.masks[role]
	if !ok {
		return false
	}
	return m.Has(bit)
}

// Known reports whether permission is in the table.
func (t *Table) Known(permission string) bool {
	_, ok := t.registry.Bit(permission)
	return ok
}

// RequiresStepUp reports whether permission needs an active step-up.
func (t *Table) RequiresStepUp(permission string) bool {
	_, ok := t.stepUp[permission]
	return ok
}

// RolesFor lists the roles holding permission, highest rank first.
func (t *Table) RolesFor(permission string) []string {
	var out []string
	for _, role := range t.hierarchy.Roles() {
		if t.Allowed(role, permission) {
			out = append(out, role)
		}
	}
	return out
}

// Permissions lists the permissions of role in bit order.
func (t *Table) Permissions(role string) []string {
	m, ok := t.masks[role]
	if !ok {
		return nil
	}
	out := make([]string, 0)
	for _, bit := range m.Bits() {
		if name, ok := t.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	return out
}

// AtLeast is the coarse hierarchy check.
func (t *Table) AtLeast(role, min string) bool {
	return t.hierarchy.AtLeast(role, min)
}

// Hierarchy returns the table's role ranking.
func (t *Table) Hierarchy() Hierarchy {
	return t.hierarchy
}

// Count returns the number of distinct permissions.
func (t *Table) Count() int {
	return t.registry.Count()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
