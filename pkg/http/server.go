package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CoinTrend/pkg/http/middleware"
	"CoinTrend/pkg/logger"
)

// ServerConfig configures NewServer. Zero durations take the defaults.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	// Metrics adds request metrics and GET /metrics. Requests slower than SlowThreshold are logged.
	Metrics       bool
	SlowThreshold time.Duration
}

func (c ServerConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the echo instance serving the API.
type Server struct {
	e     *echo.Echo
	cfg   ServerConfig
	log   *logger.Logger
	errCh chan error
}

func NewServer(cfg ServerConfig, handler Handler, log *logger.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.HTTPErrorHandler = renderError

	e.Use(middleware.Recover(log), middleware.RequestLogging(log))
	if cfg.Metrics {
		e.Use(middleware.Metrics(log, cfg.SlowThreshold))
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	if cfg.CORS {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderUserID},
		}))
	}
	if handler != nil {
		handler.RegisterRoutes(e)
	}

	return &Server{e: e, cfg: cfg, log: log, errCh: make(chan error, 1)}
}

// HeaderUserID identifies the caller of per-user endpoints.
const HeaderUserID = "X-User-ID"

// Start listens in the background. A listen failure is delivered on Err.
func (s *Server) Start() error {
	go func() {
		s.log.Info("http server listening", logger.String("addr", s.cfg.addr()))
		err := s.e.Start(s.cfg.addr())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()
	return nil
}

func (s *Server) Err() <-chan error { return s.errCh }

// Stop drains open requests for at most ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.e }

// renderError writes errors returned by handlers or middleware in the APIResponse envelope.
func renderError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = DataResponse(c, he.Code, fmt.Sprint(he.Message))
		return
	}
	_ = AppErrorResponse(c, err)
}
