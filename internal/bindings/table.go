// Package bindings holds the key to object table shared by the gateway
// and its sessions.  Remote references resolve through it; the entry
// point and the gateway's own self-binding live here too.
package bindings

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

const (
	// ServerKey is the reserved key under which the gateway binds itself.
	ServerKey = "GATEWAY_SERVER"

	// EntryPointKey is the key the entry point is bound under at startup.
	EntryPointKey = "t"

	// objectPrefix prefixes ids handed out by Register.
	objectPrefix = "o"
)

// Callback is the view of the reverse channel the table keeps.
type Callback interface {
	Port() int
	Shutdown()
}

// Starter is implemented by entry points that want to know when the
// gateway starts accepting.
type Starter interface {
	Startup()
}

// Stopper is implemented by entry points that hold resources released
// at gateway shutdown.
type Stopper interface {
	Shutdown()
}

// Table is a concurrency-safe binding store.  Bindings never expire;
// they live until removed or until Shutdown flushes the table.
type Table struct {
	store      *cache.Cache
	entryPoint interface{}
	callback   Callback
	nextID     atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a table for the given entry point (may be nil) and
// reverse channel (may be nil).
func New(entryPoint interface{}, cb Callback) *Table {
	return &Table{
		store:      cache.New(cache.NoExpiration, 0),
		entryPoint: entryPoint,
		callback:   cb,
	}
}

// Put binds value under key, replacing any previous binding.
func (t *Table) Put(key string, value interface{}) {
	t.store.Set(key, value, cache.NoExpiration)
}

// Get returns the value bound under key.
func (t *Table) Get(key string) (interface{}, bool) {
	return t.store.Get(key)
}

// Remove deletes the binding for key, if any.
func (t *Table) Remove(key string) {
	t.store.Delete(key)
}

// Register binds obj under a freshly allocated id and returns the id.
func (t *Table) Register(obj interface{}) string {
	id := objectPrefix + strconv.FormatUint(t.nextID.Add(1)-1, 10)
	t.Put(id, obj)
	return id
}

// Len returns the number of live bindings.
func (t *Table) Len() int { return t.store.ItemCount() }

// Keys returns the bound keys in no particular order.
func (t *Table) Keys() []string {
	items := t.store.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

// EntryPoint returns the entry point given to New.
func (t *Table) EntryPoint() interface{} { return t.entryPoint }

// Callback returns the reverse channel given to New.
func (t *Table) Callback() Callback { return t.callback }

// Startup binds the entry point and notifies it if it implements
// [Starter].  Only the first call has any effect.  A panic in the entry
// point's Startup is recovered and returned as an error.
func (t *Table) Startup() (err error) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	if t.entryPoint == nil {
		return nil
	}
	t.Put(EntryPointKey, t.entryPoint)
	if s, ok := t.entryPoint.(Starter); ok {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("entry point startup panicked: %v", r)
			}
		}()
		s.Startup()
	}
	return nil
}

// Started reports whether Startup has run.
func (t *Table) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Shutdown notifies an entry point implementing [Stopper] and drops
// every binding.  Only the first call has any effect.
func (t *Table) Shutdown() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	if s, ok := t.entryPoint.(Stopper); ok {
		s.Shutdown()
	}
	t.store.Flush()
}
