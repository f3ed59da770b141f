// Package dispatcher maps (service_name, method_name) pairs to the
// encapsulated method that serves them, built once from a list of
// Registrants at server-build time.
package dispatcher

import (
	"fmt"

	"prpc/service"
)

// Dispatcher is an immutable lookup table built by Build. Lookup is two
// map reads, effectively O(1) on both keys, and safe for concurrent use
// since the table never changes after construction (§5: "Registry is
// immutable after server build").
type Dispatcher struct {
	services map[string]map[string]*service.EncapsulatedMethod
}

// Build constructs a Dispatcher from a set of Registrants. A duplicate
// (service, method) pair across registrants — or within one registrant's
// own method list — is a fatal configuration error, reported as a non-nil
// error rather than panicking, so callers can fail server startup cleanly.
func Build(registrants ...service.Registrant) (*Dispatcher, error) {
	services := make(map[string]map[string]*service.EncapsulatedMethod)
	for _, r := range registrants {
		name := r.ServiceName()
		methods, ok := services[name]
		if !ok {
			methods = make(map[string]*service.EncapsulatedMethod)
			services[name] = methods
		}
		for _, entry := range r.Methods() {
			if _, dup := methods[entry.Name]; dup {
				return nil, fmt.Errorf("dispatcher: duplicate method %s/%s", name, entry.Name)
			}
			methods[entry.Name] = entry.Method
		}
	}
	return &Dispatcher{services: services}, nil
}

// MustBuild is Build, panicking on a configuration error — convenient at
// server-setup call sites that treat duplicate registration as unrecoverable.
func MustBuild(registrants ...service.Registrant) *Dispatcher {
	d, err := Build(registrants...)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup finds the method registered under (serviceName, methodName).
func (d *Dispatcher) Lookup(serviceName, methodName string) (*service.EncapsulatedMethod, bool) {
	methods, ok := d.services[serviceName]
	if !ok {
		return nil, false
	}
	m, ok := methods[methodName]
	return m, ok
}

// ServiceNames returns the registered service names, for a server to
// advertise to a registry at startup.
func (d *Dispatcher) ServiceNames() []string {
	names := make([]string, 0, len(d.services))
	for name := range d.services {
		names = append(names, name)
	}
	return names
}
