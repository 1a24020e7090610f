package command

import (
	"sort"
	"sync"
)

// Registry maps verb names to commands.  It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry returns a registry holding the built-in verbs followed by
// extra.  A later command replaces an earlier one with the same name,
// so callers can override built-ins.  Nil entries are skipped.
func NewRegistry(extra ...Command) *Registry {
	r := &Registry{commands: make(map[string]Command)}
	for _, c := range Builtins() {
		r.Register(c)
	}
	for _, c := range extra {
		if c != nil {
			r.Register(c)
		}
	}
	return r
}

// Register adds or replaces a command.
func (r *Registry) Register(c Command) {
	r.mu.Lock()
	r.commands[c.Name()] = c
	r.mu.Unlock()
}

// Lookup returns the command registered for name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Names returns the registered verbs in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
