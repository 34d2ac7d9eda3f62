package session

import "sync"

// Handle accepts serialised frames for one connection. Send is called while
// the session lock is held and must not block on the network. The frame is
// shared between recipients and must not be modified.
type Handle interface {
	Send(frame []byte) error
}

// Peer is the dispatcher's view of one connection. It owns the send-side
// handle until the first JOIN or START_SESSION moves it into the registry.
type Peer struct {
	mu       sync.Mutex
	clientID string
	handle   Handle
	ended    bool
}

// NewPeer wraps the send side of a connection.
func NewPeer(handle Handle) *Peer {
	return &Peer{handle: handle}
}

// ClientID returns the id captured from the first decoded message.
func (p *Peer) ClientID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientID != ""
}

// Registered reports whether the peer has sent a decodable message.
func (p *Peer) Registered() bool {
	_, ok := p.ClientID()
	return ok
}

func (p *Peer) observe(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clientID == "" {
		p.clientID = clientID
	}
}

// claim hands over the send-side handle exactly once.
func (p *Peer) claim() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	handle := p.handle
	p.handle = nil
	return handle
}

func (p *Peer) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = true
}

// cleanupID returns the id to purge at disconnect, or false when the peer
// never registered or already ended its session.
func (p *Peer) cleanupID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clientID == "" || p.ended {
		return "", false
	}
	return p.clientID, true
}
