package app

import (
	"sync"

	"github.com/dkeye/voicelink/internal/app/session"
	"github.com/rs/zerolog/log"
)

// ClientID identifies a browser client by its client-token cookie.
type ClientID string

// ManagerFactory builds the session manager for a new client.
type ManagerFactory func(id ClientID) *session.Manager

type entry struct {
	manager *session.Manager
	// attached counts live observer connections of the client.
	attached int
}

// Registry keeps one session manager per client, so a reconnecting websocket
// observes the session it left behind.
type Registry struct {
	mu      sync.RWMutex
	entries map[ClientID]*entry
	factory ManagerFactory
}

func NewRegistry(factory ManagerFactory) *Registry {
	return &Registry{
		entries: make(map[ClientID]*entry),
		factory: factory,
	}
}

// Attach returns the client's manager, creating it on first use, and counts
// one more observer connection.
func (r *Registry) Attach(id ClientID) *session.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{manager: r.factory(id)}
		r.entries[id] = e
		log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("created session manager")
	}
	e.attached++
	return e.manager
}

// Detach drops one observer connection. The last one to leave disconnects and
// forgets the session.
func (r *Registry) Detach(id ClientID) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.attached--
	if e.attached > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	r.mu.Unlock()

	e.manager.Disconnect()
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("released session manager")
}

func (r *Registry) Get(id ClientID) (*session.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.manager, true
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Shutdown disconnects every session and empties the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[ClientID]*entry)
	r.mu.Unlock()

	for id, e := range entries {
		e.manager.Disconnect()
		log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("session shut down")
	}
}
