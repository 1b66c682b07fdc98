package webrtc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// session tracks one live WHIP or WHEP PeerConnection so a DELETE request
// against its Location URL can tear it down cleanly.
type session struct {
	id         string
	pc         *webrtc.PeerConnection
	unregister func()
}

// sessionRegistry is the Location-header-keyed table every WHIP/WHEP
// handler shares, mirroring the session_id used for DELETE teardown.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) add(pc *webrtc.PeerConnection, unregister func()) *session {
	s := &session{id: newSessionID(), pc: pc, unregister: unregister}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

func (r *sessionRegistry) remove(id string) *session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s
}

func newSessionID() string { return uuid.NewString() }
