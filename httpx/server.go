package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Server struct {
	app      *App
	address  string
	srv      *http.Server
	shutdown time.Duration
	logger   *zap.Logger
}

type RouteRegistrar func(*App)

func NewServer(opts ...ServerOption) *Server {
	cfg := defaultServerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	app := newApp()
	app.e.HideBanner = true
	app.e.HidePort = true
	app.e.HTTPErrorHandler = cfg.ErrorHandler
	if app.e.HTTPErrorHandler == nil {
		app.e.HTTPErrorHandler = jsonErrorHandler(cfg.Logger)
	}
	app.Use(RecoverMiddleware(), RequestLogger(cfg.Logger))
	app.Use(cfg.Middlewares...)

	return &Server{
		app:      app,
		address:  cfg.Address,
		shutdown: cfg.ShutdownTimeout,
		logger:   cfg.Logger,
		srv: &http.Server{
			Addr:         cfg.Address,
			Handler:      app.e,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

func (s *Server) RegisterRoutes(reg RouteRegistrar) {
	if reg != nil {
		reg(s.app)
	}
}

func (s *Server) Handler() http.Handler { return s.app.e }

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("httpx: listen %s: %w", s.address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

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
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func jsonErrorHandler(logger *zap.Logger) HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := StatusInternalError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			case error:
				msg = m.Error()
			case nil:
			default:
				msg = fmt.Sprint(m)
			}
		} else {
			logger.Error("unhandled error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		}
		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]any{"error": msg})
	}
}
