package server

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
)

// Session is the state of one device connection. The buffer is owned by the
// connection's goroutine; the identity and activity fields may be read by
// other goroutines.
type Session struct {
	ID          string
	Protocol    parser.Protocol
	ConnectedAt time.Time

	conn   net.Conn
	parser parser.Parser
	buf    []byte
	// last heartbeat report, applied to later positions
	status *parser.TerminalStatus

	mu           sync.Mutex
	deviceID     string
	lastActivity time.Time
}

type SessionInfo struct {
	ID             string          `json:"id"`
	Protocol       parser.Protocol `json:"protocol"`
	DeviceID       string          `json:"imei,omitempty"`
	ConnectedAt    time.Time       `json:"connectedAt"`
	LastActivityAt time.Time       `json:"lastActivity"`
}

func newSession(conn net.Conn, p parser.Parser, now time.Time) *Session {
	return &Session{
		ID:           conn.RemoteAddr().String(),
		Protocol:     p.Protocol(),
		ConnectedAt:  now,
		conn:         conn,
		parser:       p,
		lastActivity: now,
	}
}

func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// bind sets the device identifier unless one is already bound. It reports
// whether the identifier was bound by this call.
func (s *Session) bind(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceID != "" || id == "" {
		return false
	}
	s.deviceID = id
	return true
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastActivity = t
	s.mu.Unlock()
}

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:             s.ID,
		Protocol:       s.Protocol,
		DeviceID:       s.deviceID,
		ConnectedAt:    s.ConnectedAt,
		LastActivityAt: s.lastActivity,
	}
}

// Registry tracks live sessions by connection identifier.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Remove deletes s and reports whether it was still registered.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.ID)
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Snapshot returns the sessions ordered by connection time.
func (r *Registry) Snapshot() []SessionInfo {
	sessions := r.All()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
