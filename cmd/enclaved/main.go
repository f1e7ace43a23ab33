// Command enclaved is a minimal broker server: it accepts an
// ExecuteRequest over HTTP and streams the resulting session as an
// NDJSON event log. The HTTP/WebSocket surface itself is intentionally
// thin — the interesting behavior lives in internal/session,
// internal/ndjson, internal/ratelimit, and gateway/direct.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/enclavejs/gateway/direct"
	"github.com/jonwraymond/enclavejs/gateway/proxy"
	"github.com/jonwraymond/enclavejs/internal/config"
	"github.com/jonwraymond/enclavejs/internal/ndjson"
	"github.com/jonwraymond/enclavejs/internal/ratelimit"
	"github.com/jonwraymond/enclavejs/internal/session"
	"github.com/jonwraymond/enclavejs/internal/toolcatalog"
	"github.com/jonwraymond/enclavejs/internal/transport/wsconn"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	catalog := defaultCatalog()
	gw := direct.New(direct.Config{
		Index:         catalog,
		Docs:          catalog,
		Runner:        catalog,
		MaxToolCalls:  cfg.MaxToolCalls,
		MaxChainSteps: cfg.MaxChainSteps,
	})

	broker := &broker{
		cfg:      cfg,
		gateway:  gw,
		sessions: session.NewTable(cfg.MaxConcurrentSessions),
		admitter: ratelimit.NewSessionAdmitter(cfg.MaxConcurrentSessions),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", broker.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/cancel", broker.handleCancelSession)
	mux.HandleFunc("GET /backends/connect", broker.handleBackendConnect)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("enclaved listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// broker wires the HTTP surface to internal/session.Table.
type broker struct {
	cfg      *config.Config
	gateway  enclave.ToolGateway
	sessions *session.Table
	admitter *ratelimit.SessionAdmitter
	upgrader websocket.Upgrader
}

// createSessionRequest is the wire shape of a POST /sessions body. It
// mirrors the subset of enclave.ExecuteRequest that a client can set
// directly — Gateway is always the broker's own, never client-supplied.
type createSessionRequest struct {
	Language string         `json:"language"`
	Code     string         `json:"code"`
	Timeout  string         `json:"timeout"`
	Profile  string         `json:"profile"`
	Limits   enclave.Limits `json:"limits"`
	Metadata map[string]any `json:"metadata"`
}

func (b *broker) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if !b.admitter.TryAcquire() {
		http.Error(w, "too many concurrent sessions", http.StatusTooManyRequests)
		return
	}
	defer b.admitter.Release()

	timeout := b.cfg.DefaultTimeout
	if body.Timeout != "" {
		parsed, err := time.ParseDuration(body.Timeout)
		if err != nil {
			http.Error(w, "invalid timeout: "+err.Error(), http.StatusBadRequest)
			return
		}
		timeout = parsed
	}

	profile := enclave.SecurityProfile(body.Profile)
	if profile == "" {
		profile = enclave.SecurityProfile(b.cfg.DefaultProfile)
	}

	req := enclave.ExecuteRequest{
		Language: body.Language,
		Code:     body.Code,
		Timeout:  timeout,
		Limits:   body.Limits,
		Profile:  profile,
		Gateway:  b.gateway,
		Metadata: body.Metadata,
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := enclave.NewSessionID()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Session-Id", id.String())
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := ndjson.NewEncoder(w)
	emit := func(ev enclave.StreamEvent) {
		if err := enc.Encode(ev); err != nil {
			slog.Warn("failed to write event", "session", id, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if _, err := b.sessions.Start(r.Context(), id, b.gateway, req, emit, b.cfg.HeartbeatInterval); err != nil {
		slog.Warn("session failed to start", "session", id, "error", err)
	}
}

func (b *broker) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := enclave.SessionID(r.PathValue("id"))
	if !b.sessions.Cancel(id, "client requested cancellation") {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleBackendConnect upgrades to a WebSocket and serves tool-call
// mediation over it: an isolated backend (docker, containerd, ...) dials
// back in here with a gateway/proxy.Gateway of its own, and this goroutine
// dispatches its requests against the broker's real ToolGateway via
// proxy.Serve, so code running inside an isolated backend gets the same
// tool access as code running in-process.
func (b *broker) handleBackendConnect(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("backend connect: upgrade failed", "error", err)
		return
	}
	conn := wsconn.New(ws)
	defer conn.Close()

	if err := proxy.Serve(r.Context(), conn, b.gateway); err != nil {
		slog.Warn("backend connect: serve ended", "error", err)
	}
}

// defaultCatalog registers a small built-in tool surface so the broker is
// useful out of the box without any external tool configuration.
func defaultCatalog() *toolcatalog.Catalog {
	c := toolcatalog.New()
	c.Register(toolcatalog.Tool{
		ID:               "util:echo",
		Name:             "echo",
		Namespace:        "util",
		ShortDescription: "returns its input arguments unchanged",
		Tags:             []string{"util", "debug"},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	})
	c.Register(toolcatalog.Tool{
		ID:               "util:now",
		Name:             "now",
		Namespace:        "util",
		ShortDescription: "returns the current broker-side time as RFC3339",
		Tags:             []string{"util", "time"},
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})
	return c
}
