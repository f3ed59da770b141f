package loadbalance

import (
	"errors"
	"time"
)

// ErrNoHealthyBackend is returned by Select when every backend is Dead
// (FailoverList also returns it when no backend is Healthy).
var ErrNoHealthyBackend = errors.New("loadbalance: no healthy backend")

// Balancer selects one backend per call from a channel-owned slice. It
// holds no backend references of its own between calls — per the
// acyclic-graph design note in SPEC_FULL.md §9, Select always receives the
// current backend slice fresh, and feedback is applied directly to the
// Backend the channel already holds (see Backend.RecordOutcome), not routed
// back through the balancer.
type Balancer interface {
	// Select picks a backend from backends. Backends in state Dead are
	// never selected; Select first gives every Dead backend a chance to
	// self-promote to Recovering if its cool-down has elapsed.
	Select(now time.Time, backends []*Backend) (*Backend, error)
	// Name identifies the strategy for logging/diagnostics.
	Name() string
}

// eligible probes Dead backends for cool-down expiry and returns the
// subset that is not Dead, preserving order.
func eligible(now time.Time, backends []*Backend) []*Backend {
	out := make([]*Backend, 0, len(backends))
	for _, b := range backends {
		b.MaybeProbe(now)
		if b.State() != Dead {
			out = append(out, b)
		}
	}
	return out
}
