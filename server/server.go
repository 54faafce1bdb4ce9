// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package server is chatlink's http layer. It serves the login redirect, the
// OIDC callback, a health check and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/chatlink/linking"
	"github.com/hashicorp/chatlink/metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LoginPath    = "/login/:token"
	CallbackPath = "/oauth/callback"
	HealthPath   = "/healthz"
	MetricsPath  = "/metrics"
)

// ErrInvalidParameter is returned when New is given bad arguments.
var ErrInvalidParameter = errors.New("invalid parameter")

// Linker runs the browser side of the linking flow. *linking.Resolver
// satisfies it.
type Linker interface {
	Login(ctx context.Context, w http.ResponseWriter, token string) (string, error)
	Resolve(ctx context.Context, w http.ResponseWriter, req *http.Request) (*linking.Result, error)
}

var _ Linker = (*linking.Resolver)(nil)

// Server is chatlink's http server.
type Server struct {
	addr            string
	linker          Linker
	engine          *gin.Engine
	logger          hclog.Logger
	shutdownTimeout time.Duration
}

// New creates a Server listening on addr once Run is called.
//
// Supported options:
//   - WithLogger
//   - WithShutdownTimeout
//   - WithMetrics
func New(addr string, linker Linker, opt ...Option) (*Server, error) {
	const op = "server.New"
	switch {
	case addr == "":
		return nil, fmt.Errorf("%s: address is empty: %w", op, ErrInvalidParameter)
	case linker == nil:
		return nil, fmt.Errorf("%s: linker is nil: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	s := &Server{
		addr:            addr,
		linker:          linker,
		logger:          opts.withLogger,
		shutdownTimeout: opts.withShutdownTimeout,
	}

	engine := gin.New()
	engine.SetHTMLTemplate(pages)
	engine.Use(s.recovery(), s.requestLogger(), secureHeaders())
	engine.GET(LoginPath, s.login)
	engine.GET(CallbackPath, s.callback)
	engine.GET(HealthPath, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if opts.withMetrics {
		engine.GET(MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	s.engine = engine
	return s, nil
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the server's address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	const op = "Server.Run"
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down gracefully. l is
// closed when Serve returns.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	const op = "Server.Serve"
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// in-flight requests keep their context through Shutdown's drain
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	srvCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", l.Addr().String())
		srvCh <- srv.Serve(l)
	}()

	select {
	case err := <-srvCh:
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", op, err)
	}
	if err := <-srvCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) login(c *gin.Context) {
	authURL, err := s.linker.Login(c.Request.Context(), c.Writer, c.Param("token"))
	switch {
	case errors.Is(err, linking.ErrInvalidOrExpiredLink):
		s.logger.Debug("login for unknown link", "error", err)
		c.HTML(http.StatusBadRequest, errorPage, invalidLinkPage)
	case err != nil:
		s.logger.Error("unable to start authentication", "error", err)
		c.HTML(http.StatusInternalServerError, errorPage, internalErrorPage)
	default:
		c.Redirect(http.StatusFound, authURL)
	}
}

func (s *Server) callback(c *gin.Context) {
	result, err := s.linker.Resolve(c.Request.Context(), c.Writer, c.Request)
	if err != nil {
		status, page := errorResponse(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("callback failed", "error", err)
		} else {
			s.logger.Debug("callback rejected", "error", err)
		}
		c.HTML(status, errorPage, page)
		return
	}
	c.HTML(http.StatusOK, successPage, gin.H{
		"ChatUserName": result.ChatUserName,
		"Username":     result.Identity.Username(),
	})
}

// errorResponse maps a linking error to a status code and a generic page.
func errorResponse(err error) (int, errorData) {
	switch {
	case errors.Is(err, linking.ErrInvalidOrExpiredLink):
		return http.StatusBadRequest, invalidLinkPage
	case errors.Is(err, linking.ErrCSRFMismatch), errors.Is(err, linking.ErrAuthenticationDenied):
		return http.StatusUnauthorized, authFailedPage
	default:
		return http.StatusInternalServerError, internalErrorPage
	}
}

// requestLogger logs each request by route pattern, so link tokens in the
// path never reach the log.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	w := s.logger.StandardWriter(&hclog.StandardLoggerOptions{ForceLevel: hclog.Error})
	return gin.CustomRecoveryWithWriter(w, func(c *gin.Context, recovered any) {
		s.logger.Error("panic serving request", "route", c.FullPath(), "panic", recovered)
		c.HTML(http.StatusInternalServerError, errorPage, internalErrorPage)
		c.Abort()
	})
}

// secureHeaders keeps pages out of caches and link tokens out of Referer
// headers.
func secureHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}
