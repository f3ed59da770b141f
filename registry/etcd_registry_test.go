package registry

import (
	"context"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const testEtcdEndpoint = "localhost:2379"

// skipUnlessEtcdReachable skips the test rather than hanging or failing the
// whole package when no etcd instance answers — every other test in this
// tree runs with no external services.
func skipUnlessEtcdReachable(t *testing.T) {
	t.Helper()
	c, err := clientv3.New(clientv3.Config{Endpoints: []string{testEtcdEndpoint}, DialTimeout: 500 * time.Millisecond})
	if err != nil {
		t.Skipf("etcd unreachable at %s: %v", testEtcdEndpoint, err)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, "registry-health-check"); err != nil {
		t.Skipf("etcd unreachable at %s: %v", testEtcdEndpoint, err)
	}
}

// TestEtcdRegistryRegisterDiscoverDeregister exercises the registry against
// this repo's own "Echo" service fixture (internal/testpb.EchoRegistrant),
// not a teacher-domain leftover.
func TestEtcdRegistryRegisterDiscoverDeregister(t *testing.T) {
	skipUnlessEtcdReachable(t)

	reg, err := NewEtcdRegistry([]string{testEtcdEndpoint}, nil)
	if err != nil {
		t.Fatalf("NewEtcdRegistry: %v", err)
	}

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Version: "1.0"}
	defer reg.Deregister("Echo", inst1.Addr)
	defer reg.Deregister("Echo", inst2.Addr)

	if err := reg.Register("Echo", inst1, 10); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("Echo", inst2, 10); err != nil {
		t.Fatalf("Register: %v", err)
	}

	instances, err := reg.Discover("Echo")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}

	if err := reg.Deregister("Echo", inst1.Addr); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover("Echo")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(instances) != 1 || instances[0].Addr != inst2.Addr {
		t.Fatalf("got %+v, want only %s", instances, inst2.Addr)
	}
}

// TestEtcdRegistryWatchEmitsOnChange confirms Watch pushes a refreshed
// instance list after a Register, the mechanism registry.WatchIntoChannel
// relies on to keep a channel.Channel's backend list current.
func TestEtcdRegistryWatchEmitsOnChange(t *testing.T) {
	skipUnlessEtcdReachable(t)

	reg, err := NewEtcdRegistry([]string{testEtcdEndpoint}, nil)
	if err != nil {
		t.Fatalf("NewEtcdRegistry: %v", err)
	}
	defer reg.Deregister("Echo", "127.0.0.1:9001")

	updates := reg.Watch("Echo")
	if err := reg.Register("Echo", ServiceInstance{Addr: "127.0.0.1:9001"}, 10); err != nil {
		t.Fatalf("Register: %v", err)
	}

	select {
	case instances := <-updates:
		found := false
		for _, inst := range instances {
			if inst.Addr == "127.0.0.1:9001" {
				found = true
			}
		}
		if !found {
			t.Fatalf("got %+v, want an instance at 127.0.0.1:9001", instances)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a watch update")
	}
}
