package singleton

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Holder is the type-erased view of a Lazy used by the registry.
type Holder interface {
	Name() string
	Ready() bool
	Check(ctx context.Context) error
	Reset() error
	Close() error
}

// Registry tracks the process's long-lived clients for health reporting,
// recovery and shutdown.
type Registry struct {
	mu      sync.RWMutex
	holders []Holder
	log     zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{log: log}
}

func (r *Registry) Register(holders ...Holder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holders = append(r.holders, holders...)
}

func (r *Registry) snapshot() []Holder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Holder, len(r.holders))
	copy(out, r.holders)
	return out
}

// Status reports each holder's health without building idle holders.
// Idle holders report ErrNotBuilt.
func (r *Registry) Status(ctx context.Context) map[string]error {
	result := make(map[string]error)
	for _, h := range r.snapshot() {
		if !h.Ready() {
			result[h.Name()] = ErrNotBuilt
			continue
		}
		result[h.Name()] = h.Check(ctx)
	}
	return result
}

// Probe builds every holder and resets those whose health check fails, so the
// next caller reconnects instead of reusing a dead client.
func (r *Registry) Probe(ctx context.Context) map[string]error {
	result := make(map[string]error)
	for _, h := range r.snapshot() {
		err := h.Check(ctx)
		result[h.Name()] = err
		if err == nil {
			continue
		}

		r.log.Warn().Err(err).Str("client", h.Name()).Msg("client probe failed")
		if errors.Is(err, ErrUnhealthy) {
			if resetErr := h.Reset(); resetErr != nil {
				r.log.Error().Err(resetErr).Str("client", h.Name()).Msg("client reset failed")
			}
		}
	}
	return result
}

// Close releases holders in reverse registration order.
func (r *Registry) Close() error {
	holders := r.snapshot()
	var errs []error
	for i := len(holders) - 1; i >= 0; i-- {
		if err := holders[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
