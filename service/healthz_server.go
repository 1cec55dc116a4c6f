package service

import (
	"context"
	"net/http"

	"github.com/rs/cors"
)

// HealthzServer answers liveness probes while the percolator brews in
// continuous mode. It reports liveness only; run outcomes are the
// metrics server's concern.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	h.server = &http.Server{
		Handler: c.Handler(mux),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

// Handle answers every probe with OK; the process being up to answer
// is the health signal.
func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}
