// Package web exposes the orchestrator over HTTP: task submission, run
// history, agent registry, schedules, secrets, and a WebSocket stream of
// lifecycle events.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ksofianos/cadre/internal/config"
	"github.com/ksofianos/cadre/internal/events"
	"github.com/ksofianos/cadre/internal/orchestrator"
	"github.com/ksofianos/cadre/internal/store"
	"github.com/ksofianos/cadre/internal/vault"
	"github.com/nats-io/nats.go"
)

type Server struct {
	store       *store.Store
	bus         *events.Bus
	nats        *events.Client
	orch        *orchestrator.Orchestrator
	vault       *vault.Vault
	hub         *Hub
	cfg         config.WebConfig
	taskTimeout time.Duration
	version     string
	startedAt   time.Time
}

func NewServer(s *store.Store, bus *events.Bus, orch *orchestrator.Orchestrator, v *vault.Vault, cfg config.WebConfig, defaults config.DefaultsConfig, version string) *Server {
	return &Server{
		store:       s,
		bus:         bus,
		orch:        orch,
		vault:       v,
		hub:         NewHub(),
		cfg:         cfg,
		taskTimeout: defaults.TaskTimeout,
		version:     version,
		startedAt:   time.Now(),
	}
}

// Handler builds the full HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	return s.withMiddleware(mux)
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.subscribeEvents()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && s.cfg.Auth != "" {
			_, pass, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Auth)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="cadre"`)
				jsonError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// subscribeEvents bridges the NATS event stream onto the WebSocket hub.
func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	client, err := events.NewClient(s.bus)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	_, _ = client.Subscribe(events.TopicAll, func(msg *nats.Msg) {
		var ev events.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("invalid event payload", "error", err)
			return
		}
		s.hub.Broadcast(ev)
	})
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
