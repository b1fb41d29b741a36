package gateway

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Passthrough is an in-memory Handler for development and tests. It keeps
// the reader policy that Rekey builds up but performs no cryptography:
// Reencrypt returns the payload unchanged. Callers are expected to check
// read permission before asking for a transformation.
type Passthrough struct {
	mu       sync.RWMutex
	policies map[int64]policy
}

type policy struct {
	readers   []string
	threshold int
}

func NewPassthrough() *Passthrough {
	return &Passthrough{policies: make(map[int64]policy)}
}

func (p *Passthrough) Rekey(ctx context.Context, req RekeyRequest) error {
	if req.DataID <= 0 {
		return fmt.Errorf("%w: data_id must be positive", ErrInvalidArgument)
	}
	if req.Threshold < 0 {
		return fmt.Errorf("%w: threshold must not be negative", ErrInvalidArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pol := p.policies[req.DataID]
	for _, r := range req.Granted {
		if !slices.Contains(pol.readers, r) {
			pol.readers = append(pol.readers, r)
		}
	}
	pol.readers = slices.DeleteFunc(pol.readers, func(r string) bool { return slices.Contains(req.Revoked, r) })
	pol.threshold = req.Threshold
	p.policies[req.DataID] = pol
	return nil
}

func (p *Passthrough) Reencrypt(ctx context.Context, req ReencryptRequest) ([]byte, error) {
	if req.DataID <= 0 || req.Reader == "" {
		return nil, fmt.Errorf("%w: data_id and reader are required", ErrInvalidArgument)
	}
	return slices.Clone(req.Payload), nil
}

// Readers returns the readers that currently hold a key for dataID.
func (p *Passthrough) Readers(dataID int64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.policies[dataID].readers)
}
