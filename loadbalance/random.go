package loadbalance

import (
	"math/rand"
	"time"
)

// Random picks a uniformly random eligible backend per call. This replaces
// the teacher's weight-proportional loadbalance/weighted_random.go: the
// spec's Backend type carries no configured weight (§3), only observed
// health/latency, so the weighting signal that strategy leaned on no
// longer exists — a plain uniform random selection is what remains once
// that input is gone (see DESIGN.md).
type Random struct{}

func (Random) Select(now time.Time, backends []*Backend) (*Backend, error) {
	pool := eligible(now, backends)
	if len(pool) == 0 {
		return nil, ErrNoHealthyBackend
	}
	return pool[rand.Intn(len(pool))], nil
}

func (Random) Name() string { return "Random" }
