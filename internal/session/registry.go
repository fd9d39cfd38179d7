package session

import (
	"hash/fnv"
	"sync"
)

// Conn is a live connection handle able to carry named events.
// The WebSocket transport implements it; tests use in-memory fakes.
type Conn interface {
	WriteEvent(event string, data any) error
}

const shardCount = 32

// Registry maps a user identity to its set of live connections. A user
// may hold several simultaneous connections (two phone sessions, a
// browser tab). Shards are keyed by identity hash so mutations on
// unrelated identities never contend on the same lock.
//
// Sessions are process-lifetime only: a restart drops everything and
// clients reconnect and re-authenticate.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]map[Conn]struct{})
	}
	return r
}

func (r *Registry) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &r.shards[h.Sum32()%shardCount]
}

// Join adds the connection to the identity's set. Idempotent.
func (r *Registry) Join(identity string, c Conn) {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[identity]
	if !ok {
		set = make(map[Conn]struct{})
		s.conns[identity] = set
	}
	set[c] = struct{}{}
}

// Leave removes the connection; when the set empties the identity
// entry is dropped entirely.
func (r *Registry) Leave(identity string, c Conn) {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[identity]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.conns, identity)
	}
}

// ConnectionsFor returns a snapshot of the identity's live connections,
// possibly empty. It never blocks beyond the shard read lock.
func (r *Registry) ConnectionsFor(identity string) []Conn {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.conns[identity]
	if len(set) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Connected reports whether the identity is currently reachable.
func (r *Registry) Connected(identity string) bool {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[identity]) > 0
}
