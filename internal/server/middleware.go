package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type reqKey struct{}

// RequestIDFromContext returns the ID assigned by the server's request
// middleware, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(reqKey{}).(string)
	return id
}

// observe tags every request with an ID (echoed as X-Request-ID) and logs
// it once the handler finishes. When a scheduler is attached the entry
// carries its run ID and live thread count so API traffic can be lined up
// with the trace of the run it inspected.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID()
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), reqKey{}, id))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(began)),
			slog.String("request_id", id),
		}
		if s.stats != nil {
			st := s.stats.Stats()
			attrs = append(attrs, slog.String("run_id", st.RunID), slog.Int64("live", st.Live))
		}
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(r.Context(), level, "request", attrs...)
	})
}
