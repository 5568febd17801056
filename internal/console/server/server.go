// Package server - HTTP-периметр консоли управления ханипотами.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/deception-core/internal/console/handler"
	"github.com/xela07ax/deception-core/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256). nil - консоль без авторизации (dev-режим)
	authValidator auth.TokenValidator
	requiredScope string

	deploymentHandler *handler.DeploymentHandler // /v1/honeypots
	rulesHandler      *handler.RulesHandler      // /v1/rules
}

// NewConsoleServer собирает роутер консоли.
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	requiredScope string,
	deploymentH *handler.DeploymentHandler,
	rulesH *handler.RulesHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:            chi.NewRouter(),
		logger:            logger.Named("console-api"),
		authValidator:     validator,
		requiredScope:     requiredScope,
		deploymentHandler: deploymentH,
		rulesHandler:      rulesH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// --- 2. Публичные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. Команды (под токеном, если задан ключ) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.requiredScope, s.logger))
		} else {
			s.logger.Warn("console auth disabled: no public key configured")
		}

		r.Post("/v1/honeypots/command", s.deploymentHandler.Command)
		r.Post("/v1/rules/refresh", s.rulesHandler.Refresh)
	})
}

// requestLogger пишет access-лог через zap вместо стандартного log.
func (s *ConsoleServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
