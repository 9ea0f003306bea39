package reclaim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownCapability is returned when a capability name is not registered.
var ErrUnknownCapability = errors.New("unknown reclaim capability")

// Action performs one reclaim operation.
type Action func(ctx context.Context) error

// Capability names registered by NewLinuxRegistry.
const (
	FlushProcessWorkingSets = "flush-process-working-sets"
	FlushSystemWorkingSet   = "flush-system-working-set"
	FlushModifiedPages      = "flush-modified-pages"
	FlushStandbyList        = "flush-standby-list"
	FlushLowPriorityStandby = "flush-low-priority-standby-list"
	PurgeTempFiles          = "purge-temp-files"
	EmptyRecycleBin         = "empty-recycle-bin"
)

// Registry is an ordered set of named actions. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	actions map[string]Action
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action under name. Names are unique.
func (r *Registry) Register(name string, action Action) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("capability name is required")
	}
	if action == nil {
		return fmt.Errorf("capability %q: nil action", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.names = append(r.names, name)
	r.actions[name] = action
	return nil
}

// Names returns registered capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Unknown returns the entries of names that are not registered.
func (r *Registry) Unknown(names []string) []string {
	var missing []string
	for _, name := range names {
		if !r.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Invoke runs the named action.
func (r *Registry) Invoke(ctx context.Context, name string) error {
	r.mu.RLock()
	action, ok := r.actions[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return action(ctx)
}
