// Package debug serves read-only diagnostics over HTTP: the capability
// records the process has discovered and its Prometheus metrics.
//
// Records are listed by key only. There is no way to look a record up by
// configuration string.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/capcache/internal/capability"
	"github.com/koustreak/capcache/internal/errs"
	"github.com/koustreak/capcache/internal/logger"
)

// Config controls the diagnostics listener.
type Config struct {
	// Addr is the listen address. Empty disables the listener.
	Addr string `yaml:"addr"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig keeps the listener disabled.
func DefaultConfig() *Config {
	return &Config{ShutdownTimeout: 5 * time.Second}
}

type handler struct {
	cache *capability.Cache
	log   *logger.Logger
}

// NewRouter builds the diagnostics routes:
//
//	GET /capabilities        all cached records keyed by hash
//	GET /capabilities/{key}  one record
//	GET /metrics             Prometheus exposition of gatherer
func NewRouter(cache *capability.Cache, gatherer prometheus.Gatherer, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.L()
	}
	h := &handler{cache: cache, log: log.Component("debug")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/capabilities", h.listCapabilities)
	r.Get("/capabilities/{key}", h.getCapability)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type listResponse struct {
	Entries int                                  `json:"entries"`
	Records map[capability.Key]*capability.Record `json:"records"`
}

func (h *handler) listCapabilities(w http.ResponseWriter, _ *http.Request) {
	snap := h.cache.Snapshot()
	h.writeJSON(w, http.StatusOK, listResponse{Entries: len(snap), Records: snap})
}

func (h *handler) getCapability(w http.ResponseWriter, r *http.Request) {
	key := capability.Key(chi.URLParam(r, "key"))
	rec, ok := h.cache.Lookup(key)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": errs.ErrKindNotFound.String(),
			"key":   string(key),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.With().Err(err).Logger().Warn("failed to write response")
	}
}

// Serve runs the diagnostics listener until ctx is done, then shuts it down
// gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, cfg *Config, h http.Handler, log *logger.Logger) error {
	if cfg == nil || cfg.Addr == "" {
		return nil
	}
	if log == nil {
		log = logger.L()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.InfoWith("debug listener started", map[string]any{"addr": cfg.Addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errs.Wrap(errs.ErrKindConnectionFailed, "debug listener failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "debug listener shutdown", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errs.Wrap(errs.ErrKindConnectionFailed, "debug listener failed", err)
	}
	return nil
}
