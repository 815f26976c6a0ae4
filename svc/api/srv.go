package api

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"sealbin/cfg"
	"sealbin/pkg/domain"
	"sealbin/svc/db"
	"sealbin/svc/lim"
	"sealbin/svc/svc"
	"sealbin/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

type Server struct {
	router     *chi.Mux
	paste      *svc.Paste
	cfg        *cfg.Cfg
	rdb        *db.Redis
	httpServer *http.Server
}

// LoadTLS reads the certificate pair named in c. It returns nil when TLS is
// not configured; a half configured or unreadable pair is an error.
func LoadTLS(c *cfg.Cfg) (*tls.Config, error) {
	if c.TLSCertFile == "" && c.TLSKeyFile == "" {
		return nil, nil
	}
	if c.TLSCertFile == "" || c.TLSKeyFile == "" {
		return nil, errors.New("both --cert and --key must be provided for TLS, or neither")
	}
	cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "load TLS certificate/key")
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// NewServer wires the router. rdb may be nil.
func NewServer(c *cfg.Cfg, p *svc.Paste, l *lim.Limiter, rdb *db.Redis, tlsConfig *tls.Config) *Server {
	s := &Server{paste: p, cfg: c, rdb: rdb}
	mw := NewMw(l, c)
	hdl := &Hdl{paste: p, cfg: c}
	pages := NewPages(c.WebDir)

	r := chi.NewRouter()
	r.Use(mw.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(mw.CORS)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, domain.NewErr(domain.ErrNotFound.Code, "not found", http.StatusNotFound), "")
	})
	r.Get("/health", s.Health)
	r.Get("/ready", s.Ready)
	r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	if c.PprofEnabled {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("route", routePattern(req)).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("client_ip", util.RedactIP(lim.GetRealIP(req, c.TrustedProxies))).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.SecurityHeaders)
		r.Use(mw.Observe)

		// Create starts its deadline once the body is in; a slow upload is
		// bounded by READ_TIMEOUT instead.
		r.With(mw.RateLimit("create")).Post("/create", hdl.CreatePaste)

		r.Group(func(r chi.Router) {
			r.Use(mw.ContextTimeout)
			r.Get("/", pages.Index)
			r.Get("/p/*", pages.Retrieve)
			r.Handle("/assets/*", pages.Assets())
			r.With(mw.RateLimit("read")).Get("/api/paste/{id}", hdl.GetPaste)
			r.With(mw.RateLimit("delete")).Delete("/api/paste/{id}", hdl.DeletePaste)
			r.Get("/api/config", hdl.GetConfig)
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              c.Addr,
		Handler:           r,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		IdleTimeout:       c.IdleTimeout,
		MaxHeaderBytes:    64 * 1024,
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	tlsOn := s.httpServer.TLSConfig != nil
	if tlsOn {
		util.Info().Str("addr", ln.Addr().String()).Msg("listening (https)")
	} else {
		util.Warn().
			Str("addr", ln.Addr().String()).
			Msg("TLS not configured: running in HTTP mode, traffic is unencrypted and potentially tamperable; provide --cert and --key to enable HTTPS")
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsOn {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if err != nil {
			util.Error().Err(err).Msg("server failed")
		}
		return err
	case <-ctx.Done():
	}
	util.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	if serveErr := <-errCh; err == nil {
		err = serveErr
	}
	return err
}
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
