// SPDX-License-Identifier: GPL-3.0-only

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/output"
)

const shutdownTimeout = 5 * time.Second

// SnapshotSource lists the state of all outputs.
type SnapshotSource interface {
	Snapshots() []output.Snapshot
}

// outputView is the JSON form of an output snapshot.
type outputView struct {
	Name       string `json:"name"`
	Product    string `json:"product,omitempty"`
	Kind       string `json:"kind"`
	Lux        uint64 `json:"lux"`
	Luminance  *uint8 `json:"luminance,omitempty"`
	Brightness uint64 `json:"brightness"`
	Target     uint64 `json:"target"`
	Pending    bool   `json:"pending"`
	Cooldown   uint8  `json:"cooldown"`
	Samples    int    `json:"samples"`
	WarmingUp  bool   `json:"warming_up"`
}

// NewRouter returns the HTTP routes of the status endpoint.
func NewRouter(m *Metrics, source SnapshotSource) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/outputs", outputsHandler(source)).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func outputsHandler(source SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snapshots := source.Snapshots()
		views := make([]outputView, 0, len(snapshots))
		for _, s := range snapshots {
			view := outputView{
				Name:       s.Name,
				Product:    s.Product,
				Kind:       string(s.Kind),
				Lux:        s.Status.Lux,
				Brightness: s.Status.Brightness,
				Target:     s.Status.Target,
				Pending:    s.Status.Pending,
				Cooldown:   s.Status.Cooldown,
				Samples:    s.Status.Samples,
				WarmingUp:  s.Status.WarmingUp,
			}
			if s.Status.Luminance.Present() {
				luma, _ := s.Status.Luminance.Get()
				view.Luminance = &luma
			}
			views = append(views, view)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			log.Error().Err(err).Msg("Failed to encode outputs")
		}
	}
}

// Server serves the status endpoint in the background.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Start listens on addr and serves handler until Shutdown.
func Start(addr string, handler http.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	log.Info().Str("addr", listener.Addr().String()).Msg("Metrics server started")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
