package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AdminServer serves /metrics, /healthz and /readyz over HTTP.
type AdminServer struct {
	srv    *http.Server
	addr   string
	logger *zap.Logger
}

// NewAdminRouter builds the admin routes. db may be nil.
func NewAdminRouter(machine *status.Machine, db Pinger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		state := machine.Current()
		if state != status.Ready && state != status.Degraded {
			http.Error(w, string(state), http.StatusServiceUnavailable)
			return
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "store: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte(string(state) + "\n"))
	})
	return r
}

// NewAdminServer returns nil when addr is empty.
func NewAdminServer(addr string, handler http.Handler, logger *zap.Logger) *AdminServer {
	if addr == "" {
		return nil
	}
	return &AdminServer{
		srv:    &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		addr:   addr,
		logger: logger,
	}
}

// Start listens on the configured address and serves in the background.
func (a *AdminServer) Start() error {
	if a == nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.logger.Info("admin server starting", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down.
func (a *AdminServer) Stop(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}
