package http

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		h.logger.Printf("http %s %s %d %s request_id=%s", r.Method, r.URL.Path, resp.status, time.Since(start), chimw.GetReqID(r.Context()))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
