package loadbalance

import "time"

// FailoverList tries backends in a fixed priority order, falling through
// past any that are Recovering or Dead — it only ever returns the first
// Healthy backend in the list, per SPEC_FULL.md §4.8.
type FailoverList struct{}

func (FailoverList) Select(now time.Time, backends []*Backend) (*Backend, error) {
	for _, b := range backends {
		b.MaybeProbe(now)
		if b.State() == Healthy {
			return b, nil
		}
	}
	return nil, ErrNoHealthyBackend
}

func (FailoverList) Name() string { return "FailoverList" }
