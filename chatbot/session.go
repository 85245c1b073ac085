package chatbot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/korylprince/chat-image-relay/metrics"
)

// ErrSessionClosed is returned when sending to a closed session
var ErrSessionClosed = errors.New("session closed")

// closeGrace bounds the close handshake write
const closeGrace = time.Second

// Session is one client connection. It owns the connection's Conversation;
// the Conversation is only touched by the session's turn worker.
type Session struct {
	ID string

	conn *websocket.Conn
	conv *Conversation

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan string

	writeTimeout time.Duration
	writeMu      sync.Mutex
	closed       bool
	closeOnce    sync.Once
}

func newSession(conn *websocket.Conn, conv *Conversation, queueDepth int, writeTimeout time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:           uuid.NewString(),
		conn:         conn,
		conv:         conv,
		ctx:          ctx,
		cancel:       cancel,
		queue:        make(chan string, queueDepth),
		writeTimeout: writeTimeout,
	}
}

// Send writes ev to the client as JSON. It is safe for concurrent use.
func (s *Session) Send(ev Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(ev)
}

// enqueue queues a chat turn, failing if the queue is full
func (s *Session) enqueue(text string) error {
	select {
	case s.queue <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

// Done is closed when the session closes
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close cancels in-flight work and closes the connection. No events are sent afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		// WriteControl and Close may run concurrently with a blocked Send
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		s.conn.Close()

		s.writeMu.Lock()
		s.closed = true
		s.writeMu.Unlock()
	})
}

// Registry tracks open sessions
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

// NewRegistry returns an empty Registry
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{sessions: make(map[string]*Session), metrics: m}
}

// Add registers s
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.metrics.ActiveConnections.Set(float64(len(r.sessions)))
}

// Remove unregisters the session with the given id
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.metrics.ActiveConnections.Set(float64(len(r.sessions)))
}

// Get returns the session with the given id, or nil
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every open session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
