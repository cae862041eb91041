package coordinator

import (
	"fmt"
	"sort"
	"sync"

	"tovala-go-home/internal/tovala"
)

// Entry bundles one account's client, coordinator, and poller.
type Entry struct {
	Account     string
	Client      *tovala.Client
	Coordinator *Coordinator
	Poller      *Poller
}

// Registry is the supervisor-owned map of active account entries. It is
// created at setup, torn down at shutdown, and never reached from anywhere
// else — there is deliberately no package-level instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers an entry under its account name.
func (r *Registry) Add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Account]; exists {
		return fmt.Errorf("account %q already registered", e.Account)
	}
	r.entries[e.Account] = e
	return nil
}

// Get returns the entry for an account, or false.
func (r *Registry) Get(account string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[account]
	return e, ok
}

// ByOven returns the entry whose coordinator polls the given oven id.
func (r *Registry) ByOven(ovenID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Coordinator.OvenID() == ovenID {
			return e, true
		}
	}
	return nil, false
}

// List returns all entries sorted by account name.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Account < entries[j].Account })
	return entries
}

// Remove stops an entry's poller and drops it from the registry.
func (r *Registry) Remove(account string) {
	r.mu.Lock()
	e, ok := r.entries[account]
	delete(r.entries, account)
	r.mu.Unlock()
	if ok && e.Poller != nil {
		e.Poller.Stop()
	}
}

// StopAll stops every poller and clears the registry.
func (r *Registry) StopAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()
	for _, e := range entries {
		if e.Poller != nil {
			e.Poller.Stop()
		}
	}
}
