// Package registry provides the etcd-based implementation of the Registry
// interface: a distributed phonebook at key prefix /prpc/{ServiceName}/,
// one key per instance, each value a JSON-encoded ServiceInstance, backed
// by a TTL lease so a crashed server's entry expires instead of lingering.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// keyPrefix namespaces every key this registry writes, distinguishing it
// from any other system sharing the same etcd cluster.
const keyPrefix = "/prpc/"

// defaultOpTimeout bounds every etcd RPC except KeepAlive/Watch's
// necessarily long-lived streams, matching the explicit-deadline
// convention channel.Options.ConnectTimeout and transport.Dial already
// apply to the RPC data path — the teacher's registry left every etcd call
// on an unbounded context.TODO().
const defaultOpTimeout = 5 * time.Second

// EtcdRegistry implements Registry against a live etcd v3 cluster.
type EtcdRegistry struct {
	client *clientv3.Client
	log    *zap.SugaredLogger
}

// NewEtcdRegistry dials endpoints. log may be nil, in which case discovery
// failures and lease-expiry events are dropped silently (zap.NewNop), same
// default every other component in this repo falls back to.
func NewEtcdRegistry(endpoints []string, log *zap.SugaredLogger) (*EtcdRegistry, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return &EtcdRegistry{client: c, log: log}, nil
}

func servicePrefix(serviceName string) string { return keyPrefix + serviceName + "/" }

func serviceKey(serviceName, addr string) string { return servicePrefix(serviceName) + addr }

// Register puts instance under its service's key prefix with a ttl-second
// lease and starts a background KeepAlive to renew it. The lease id is kept
// local to this call (never stored on the struct), since one EtcdRegistry
// is shared across however many Register calls a server makes at startup.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	putCtx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	lease, err := r.client.Grant(putCtx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease for %s: %w", serviceName, err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("registry: marshal instance: %w", err)
	}

	if _, err := r.client.Put(putCtx, serviceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s/%s: %w", serviceName, instance.Addr, err)
	}

	// KeepAlive outlives putCtx — it runs for as long as this instance
	// should stay registered, not just for the duration of the Put.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("registry: start keepalive for %s/%s: %w", serviceName, instance.Addr, err)
	}
	go func() {
		for range ch {
		}
		r.log.Debugw("registry: lease keepalive stopped", "service", serviceName, "addr", instance.Addr)
	}()
	return nil
}

// Deregister deletes a single instance's key. Called during graceful
// shutdown, before the listener closes.
func (r *EtcdRegistry) Deregister(serviceName, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if _, err := r.client.Delete(ctx, serviceKey(serviceName, addr)); err != nil {
		return fmt.Errorf("registry: delete %s/%s: %w", serviceName, addr, err)
	}
	return nil
}

// Discover lists every instance currently registered under serviceName's
// prefix. Malformed values (e.g. a partial write from a crashed peer) are
// logged and skipped rather than failing the whole call.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", serviceName, err)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warnw("registry: skipping malformed instance", "key", string(kv.Key), "error", err)
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits a fresh instance list for serviceName on every change under
// its prefix. Re-fetching the whole list per event is simpler than
// reconciling individual put/delete events and cheap enough for the
// registration volumes this framework targets.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		watchChan := r.client.Watch(context.Background(), servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(serviceName)
			if err != nil {
				r.log.Warnw("registry: re-discover after watch event failed", "service", serviceName, "error", err)
				continue
			}
			ch <- instances
		}
	}()
	return ch
}
