package registry

import "prpc/channel"

// WatchIntoChannel seeds ch with serviceName's currently registered
// instances and keeps it in sync with Watch updates until stop is closed.
// This is the one place service discovery touches a Channel: the Channel
// itself only ever consumes a static address list (SPEC_FULL.md §4.10),
// and this function is what turns a live Registry into that list.
func WatchIntoChannel(reg Registry, serviceName string, ch *channel.Channel, stop <-chan struct{}) error {
	instances, err := reg.Discover(serviceName)
	if err != nil {
		return err
	}
	ch.UpdateBackends(addressesOf(instances))

	updates := reg.Watch(serviceName)
	go func() {
		for {
			select {
			case instances, ok := <-updates:
				if !ok {
					return
				}
				ch.UpdateBackends(addressesOf(instances))
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func addressesOf(instances []ServiceInstance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.Addr
	}
	return out
}
