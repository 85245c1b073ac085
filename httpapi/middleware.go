package httpapi

import (
	"fmt"
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

//logMiddleware logs every request after it completes.
//httpsnoop keeps http.Hijacker available so WebSocket upgrades pass through.
func logMiddleware(next http.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", m.Code),
			zap.String("status", http.StatusText(m.Code)),
			zap.Duration("duration", m.Duration),
			zap.Int64("written", m.Written),
			zap.String("remote", r.RemoteAddr),
		}
		if r.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", r.URL.RawQuery))
		}

		if m.Code >= http.StatusInternalServerError {
			log.Warn("Request", fields...)
			return
		}
		log.Info("Request", fields...)
	})
}

//recoveryLogger adapts zap to handlers.RecoveryHandlerLogger
type recoveryLogger struct {
	log *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("Recovered from panic", zap.String("panic", fmt.Sprint(v...)))
}
