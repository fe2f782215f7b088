package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Validator runs before route handlers; return an error to stop the pipeline.
type Validator func(Context) error

// RouteRegistrar mounts routes on the server's App.
type RouteRegistrar func(*App)

type Server struct {
	app      *App
	log      *zap.Logger
	srv      *http.Server
	shutdown time.Duration
}

// NewServer builds an App with recover, request id, zap request logging,
// secure headers, body limit, optional CORS and rate limiting, then any
// extra middleware and validators.
func NewServer(opts ...ServerOption) *Server {
	cfg := defaultServerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := New()
	app.e.HTTPErrorHandler = ErrorHandler(log)
	if cfg.ErrorHandler != nil {
		app.e.HTTPErrorHandler = cfg.ErrorHandler
	}

	app.Use(RecoverMiddleware(), RequestIDMiddleware(), RequestLoggerMiddleware(log), SecureHeadersMiddleware())
	if cfg.BodyLimit != "" {
		app.Use(BodyLimitMiddleware(cfg.BodyLimit))
	}
	if cfg.CORS != nil {
		app.Use(CORSMiddleware(cfg.CORS))
	}
	if cfg.RateLimit != nil {
		app.Use(RateLimitMiddleware(*cfg.RateLimit))
	}
	if len(cfg.Middlewares) > 0 {
		app.Use(cfg.Middlewares...)
	}
	if len(cfg.Validators) > 0 {
		app.Use(validatorMiddleware(cfg.Validators...))
	}

	return &Server{
		app: app,
		log: log,
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           app,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		shutdown: cfg.ShutdownTimeout,
	}
}

func (s *Server) RegisterRoutes(reg RouteRegistrar) {
	if reg != nil {
		reg(s.app)
	}
}

// App exposes the route table.
func (s *Server) App() *App { return s.app }

func (s *Server) Handler() http.Handler { return s.app }

// Start listens on the configured address and blocks until ctx is cancelled
// or the listener fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("graceful shutdown failed", zap.Error(err))
			return err
		}
		s.log.Info("http server stopped")
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

func validatorMiddleware(v ...Validator) MiddlewareFunc {
	copied := append([]Validator(nil), v...)
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			for _, validator := range copied {
				if validator == nil {
					continue
				}
				if err := validator(c); err != nil {
					return err
				}
			}
			return next(c)
		}
	}
}
