package chatbot

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/korylprince/chat-image-relay/metrics"
	"go.uber.org/zap"
)

// busyMessage is sent when a message arrives while the turn queue is full
const busyMessage = "Hold on, I'm still working on your earlier messages. Try again in a moment."

// Options configures a Handler
type Options struct {
	Pattern      *Pattern // defaults to DefaultPattern()
	ScanMaxBytes int      // per-turn directive scan buffer; <= 0 means unbounded
	QueueDepth   int      // pending turns per connection; defaults to 8

	PingInterval   time.Duration // zero disables pings
	ReadTimeout    time.Duration // zero disables the read deadline
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// Handler handles WebSocket chat connections
type Handler struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	prompt   PromptSource
	registry *Registry
	runner   *turnRunner
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler creates a new chat handler
func NewHandler(log *zap.Logger, completer Completer, images ImageRunner, prompt PromptSource, m *metrics.Metrics, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if opts.Pattern == nil {
		opts.Pattern = DefaultPattern()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 8
	}

	return &Handler{
		log:      log,
		metrics:  m,
		prompt:   prompt,
		registry: NewRegistry(m),
		runner: &turnRunner{
			log:          log,
			metrics:      m,
			completer:    completer,
			images:       images,
			pattern:      opts.Pattern,
			scanMaxBytes: opts.ScanMaxBytes,
		},
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Registry returns the handler's open sessions
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Shutdown closes every open connection
func (h *Handler) Shutdown() {
	h.registry.CloseAll()
}

// ServeHTTP handles the WebSocket upgrade and the connection's lifetime
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	system, err := h.prompt.SystemPrompt()
	if err != nil {
		h.log.Error("Could not load system prompt", zap.Error(err))
		conn.WriteJSON(aiEvent(genericError))
		conn.Close()
		return
	}

	sess := newSession(conn, NewConversation(system), h.opts.QueueDepth, h.opts.WriteTimeout)
	log := h.log.With(zap.String("session", sess.ID))

	h.registry.Add(sess)
	log.Info("Connection opened", zap.String("remote", r.RemoteAddr))

	defer func() {
		h.registry.Remove(sess.ID)
		sess.Close()
		log.Info("Connection closed")
	}()

	go h.work(sess, log)
	if h.opts.PingInterval > 0 {
		go h.ping(sess)
	}

	h.read(sess, log)
}

// read queues incoming messages until the connection fails or closes
func (h *Handler) read(sess *Session, log *zap.Logger) {
	conn := sess.conn
	if h.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}
	if h.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn("WebSocket error", zap.Error(err))
			}
			return
		}

		if h.opts.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		}

		text := string(data)
		log.Debug("Received message", zap.Int("bytes", len(text)))

		if err := sess.enqueue(text); err != nil {
			h.metrics.Turns.WithLabelValues(metrics.TurnRejected).Inc()
			log.Warn("Rejected message", zap.Error(err))
			if err := sess.Send(aiEvent(busyMessage)); err != nil {
				return
			}
		}
	}
}

// work runs queued turns one at a time in arrival order
func (h *Handler) work(sess *Session, log *zap.Logger) {
	for {
		select {
		case <-sess.Done():
			return
		case text := <-sess.queue:
			err := h.runner.run(sess.ctx, sess.conv, sess, text)
			switch {
			case err == nil:
			case errors.Is(err, ErrMissingContext):
				log.Error("Dropped turn", zap.Error(err))
			case sess.ctx.Err() != nil:
				log.Debug("Turn abandoned; connection closed", zap.Error(err))
				return
			case errors.Is(err, errSendFailed):
				// a connection that failed a write rejects every later write
				log.Warn("Closing connection after failed write", zap.Error(err))
				sess.Close()
				return
			default:
				log.Warn("Turn failed", zap.Error(err))
			}
		}
	}
}

// ping keeps the connection alive until the session closes
func (h *Handler) ping(sess *Session) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.opts.PingInterval)
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
