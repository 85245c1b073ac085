package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configures the router
type Options struct {
	StaticDir   string              // served at /; empty disables static files
	Gatherer    prometheus.Gatherer // served at /metrics; nil disables metrics
	Connections func() int          // reported by /healthz
}

//NewRouter returns the HTTP router for static assets, the chat WebSocket, and service endpoints
func NewRouter(log *zap.Logger, chat http.Handler, opts Options) http.Handler {
	r := mux.NewRouter()

	r.Path("/chat").Handler(chat)

	// clients may also upgrade at the site root
	r.Path("/").MatcherFunc(isWebSocket).Handler(chat)

	r.Path("/healthz").Methods("GET").Handler(handleHealth(opts.Connections))

	if opts.Gatherer != nil {
		r.Path("/metrics").Methods("GET").Handler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if opts.StaticDir != "" {
		r.PathPrefix("/").Methods("GET", "HEAD").Handler(handlers.CompressHandler(http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: log}),
		handlers.PrintRecoveryStack(true),
	)

	return recovery(logMiddleware(r, log))
}

func isWebSocket(r *http.Request, _ *mux.RouteMatch) bool {
	return websocket.IsWebSocketUpgrade(r)
}

//HealthResponse is the /healthz response body
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func handleHealth(connections func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := &HealthResponse{Status: "ok"}
		if connections != nil {
			resp.Connections = connections()
		}
		writeJSON(w, http.StatusOK, resp)
	})
}
