package loadbalance

import (
	"sync/atomic"
	"time"
)

// RoundRobin distributes calls evenly across all eligible backends using a
// lock-free atomic counter, adapted from the teacher's
// loadbalance/roundrobin.go (originally keyed on registry.ServiceInstance)
// to the channel-owned Backend type.
type RoundRobin struct {
	counter atomic.Uint64
}

func (r *RoundRobin) Select(now time.Time, backends []*Backend) (*Backend, error) {
	pool := eligible(now, backends)
	if len(pool) == 0 {
		return nil, ErrNoHealthyBackend
	}
	n := r.counter.Add(1)
	return pool[n%uint64(len(pool))], nil
}

func (r *RoundRobin) Name() string { return "RoundRobin" }
