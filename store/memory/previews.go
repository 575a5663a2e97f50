package memory

import (
	"context"
	"sync"
)

// Previews keeps biometric preview artifacts in memory.
type Previews struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewPreviews() *Previews {
	return &Previews{items: make(map[string][]byte)}
}

func (p *Previews) PutPreview(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[key] = append([]byte(nil), data...)
	return nil
}

func (p *Previews) DeletePreview(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, key)
	return nil
}

// Get returns a stored preview and whether it exists.
func (p *Previews) Get(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.items[key]
	return b, ok
}
