package transport

import (
	"net"
	"sort"
	"sync"
	"time"
)

// ConnID identifies an accepted connection for the lifetime of a Listener.
type ConnID uint64

type peer struct {
	id   ConnID
	conn net.Conn

	wmu sync.Mutex // serializes frames written to conn
}

func (p *peer) write(frame []byte, timeout time.Duration) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if timeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := p.conn.Write(frame)
	return err
}

// Registry is the set of live connections. It has its own lock and is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[ConnID]*peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[ConnID]*peer)}
}

// Add registers conn under id.
func (r *Registry) Add(id ConnID, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = &peer{id: id, conn: conn}
}

// Remove drops id and reports whether it was registered. It does not close the connection.
func (r *Registry) Remove(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[id]
	delete(r.peers, id)
	return ok
}

// Get returns the connection registered under id.
func (r *Registry) Get(id ConnID) (net.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return p.conn, true
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ConnID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// CloseAll closes and removes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[ConnID]*peer)
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}
}

func (r *Registry) snapshot() []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
