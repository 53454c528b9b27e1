package http

import (
	"net/http"

	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger stores a logger tagged with the request id in the request context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.Default()
		if id := middleware.GetReqID(r.Context()); id != "" {
			logger = logger.With("request_id", id)
		}
		ctx := logging.With(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
