package permission

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidWidth      = errors.New("permission: invalid mask width")
	ErrRegistryFrozen    = errors.New("permission: registry frozen")
	ErrEmptyName         = errors.New("permission: name cannot be empty")
	ErrDuplicate         = errors.New("permission: already registered")
	ErrLimitExceeded     = errors.New("permission: limit exceeded")
	ErrUnknownPermission = errors.New("permission: not registered")
)

// Registry maps permission names to bit positions within a Mask.
type Registry struct {
	maxBits int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates a Registry. maxBits selects the mask width
// (64/128/256/512).
func NewRegistry(maxBits int) (*Registry, error) {
	switch maxBits {
	case 64, 128, 256, 512:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, maxBits)
	}
	return &Registry{
		maxBits:   maxBits,
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}, nil
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}
	if name == "" {
		return -1, ErrEmptyName
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	next := len(r.nameToBit)
	if next >= r.maxBits {
		return -1, fmt.Errorf("%w: %d permissions", ErrLimitExceeded, r.maxBits)
	}
	r.nameToBit[name] = next
	r.bitToName[next] = name
	return next, nil
}

// Bit returns the bit index for name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission registered at bit.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// MaskOf builds a mask holding the named permissions.
func (r *Registry) MaskOf(names []string) (Mask, error) {
	m := newMask(r.maxBits)
	for _, n := range names {
		bit, ok := r.Bit(n)
		if !ok {
			return Mask{}, fmt.Errorf("%w: %s", ErrUnknownPermission, n)
		}
		m.Set(bit)
	}
	return m, nil
}

// All returns a mask with every registered permission set.
func (r *Registry) All() Mask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := newMask(r.maxBits)
	for bit := range r.bitToName {
		m.Set(bit)
	}
	return m
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// MaxBits returns the configured mask width.
func (r *Registry) MaxBits() int {
	return r.maxBits
}
