package invoke

import (
	"sync"

	"github.com/pkg/errors"
)

// Registration is the scoped handle returned by Registry.Register. Its
// Release removes the descriptor from the registry (spec.md §4.3:
// "Registration returns a scoped handle whose release removes the
// descriptor").
type Registration struct {
	release func()
}

// Release removes the associated descriptor. Safe to call more than once;
// only the first call has an effect.
func (r Registration) Release() {
	if r.release != nil {
		r.release()
	}
}

// Registry is the method-name-to-descriptor multimap of spec.md §4.3: a
// fast exact-match lookup for requests (exactly one descriptor must match)
// and fan-out for notifications (all matching descriptors run, in
// registration order).
type Registry struct {
	mu      sync.RWMutex
	byMethod map[string][]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMethod: make(map[string][]*Descriptor)}
}

// Register adds d to the registry. Registering a second request-kind
// descriptor for a method already bound to one is a configuration error
// and fails fast, per spec.md §4.3 ("multiple matches is a configuration
// error (fail-fast at registration)"). Notification descriptors may always
// be added; they fan out. The registration is visible to the next dispatch
// after Register returns (spec.md §4.3: "visible to the next dispatch after
// it returns") because the write happens under the same mutex every lookup
// takes.
func (r *Registry) Register(d Descriptor) (Registration, error) {
	if d.Method == "" {
		return Registration{}, errors.New("invoke: descriptor method must not be empty")
	}
	if d.Handler == nil {
		return Registration{}, errors.Errorf("invoke: descriptor for %q has no handler", d.Method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Kind == KindRequest {
		for _, existing := range r.byMethod[d.Method] {
			if existing.Kind == KindRequest {
				return Registration{}, errors.Errorf("invoke: a request handler is already registered for method %q", d.Method)
			}
		}
	}

	stored := d
	r.byMethod[d.Method] = append(r.byMethod[d.Method], &stored)

	return Registration{release: func() {
		r.remove(d.Method, &stored)
	}}, nil
}

func (r *Registry) remove(method string, target *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byMethod[method]
	for i, d := range list {
		if d == target {
			r.byMethod[method] = append(list[:i], list[i+1:]...)
			if len(r.byMethod[method]) == 0 {
				delete(r.byMethod, method)
			}
			return
		}
	}
}

// LookupRequest returns the single request-kind descriptor bound to method,
// if any.
func (r *Registry) LookupRequest(method string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.byMethod[method] {
		if d.Kind == KindRequest {
			return d, true
		}
	}
	return nil, false
}

// LookupNotifications returns every notification-kind descriptor bound to
// method, in registration order, for fan-out dispatch.
func (r *Registry) LookupNotifications(method string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, d := range r.byMethod[method] {
		if d.Kind == KindNotification {
			out = append(out, d)
		}
	}
	return out
}
