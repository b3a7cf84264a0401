package web

import (
	"sync"

	"toolhost/internal/session"
)

// registry tracks live sessions by id. The beacon endpoint and the viewer
// both resolve their Tracker here; one browser maps to one entry.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Tracker
	create   func(meta session.ClientMeta, id string) *session.Tracker
}

func newRegistry(create func(meta session.ClientMeta, id string) *session.Tracker) *registry {
	return &registry{
		sessions: make(map[string]*session.Tracker),
		create:   create,
	}
}

// start returns the existing tracker for id, or creates and starts one.
// With an empty id a fresh session id is minted.
func (r *registry) start(meta session.ClientMeta, id string) *session.Tracker {
	r.mu.Lock()
	if id != "" {
		if trk, ok := r.sessions[id]; ok {
			r.mu.Unlock()
			return trk
		}
	}
	trk := r.create(meta, id)
	r.sessions[trk.ID()] = trk
	r.mu.Unlock()

	trk.Start()
	return trk
}

// get returns the tracker for id, if any.
func (r *registry) get(id string) (*session.Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trk, ok := r.sessions[id]
	return trk, ok
}

// end finishes and forgets the session. Unknown ids are ignored.
func (r *registry) end(id string) {
	r.mu.Lock()
	trk, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		trk.End()
	}
}

// endAll finishes every live session; used on server shutdown.
func (r *registry) endAll() {
	r.mu.Lock()
	all := make([]*session.Tracker, 0, len(r.sessions))
	for id, trk := range r.sessions {
		all = append(all, trk)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, trk := range all {
		trk.End()
	}
}
