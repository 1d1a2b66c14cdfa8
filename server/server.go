package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-backoffice/guard"
	"github.com/jrsteele09/go-backoffice/identity"
	"github.com/jrsteele09/go-backoffice/internal/config"
	"github.com/jrsteele09/go-backoffice/users"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	handler    http.Handler
	fileServer http.Handler
	config     config.Config
	users      *users.Service
	provider   identity.Provider
	guard      *guard.Guard
	cors       *cors.Cors
	nowTime    func() time.Time
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg config.Config, userService *users.Service, provider identity.Provider, opts ...Option) (*Server, error) {
	if userService == nil {
		return nil, errors.New("[Server New] user service is required")
	}
	if provider == nil {
		return nil, errors.New("[Server New] identity provider is required")
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		fileServer: FileServerHandler(),
		config:     cfg,
		users:      userService,
		provider:   provider,
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	g, err := guard.New(provider, cfg.GetProtectedPrefix(),
		guard.WithTimeout(cfg.GetProviderTimeout()),
		guard.WithNowTime(s.nowTime),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create session guard: %w", err)
	}
	s.guard = g

	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		s.cors = cors.New(cors.Options{
			AllowedOrigins:   origins.Slice(),
			AllowedMethods:   cfg.GetAllowedMethods(),
			AllowedHeaders:   cfg.GetAllowedHeaders(),
			AllowCredentials: true,
			MaxAge:           86400,
		})
	}

	s.initRoutes()
	s.logRoutes()

	// The guard sits in front of the mux so every page under the protected
	// prefix is covered, including ones that 404.
	s.handler = ChainMiddleware(s.guard.Middleware(s.mux).ServeHTTP,
		s.RequestIDMiddleware,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.CorsMiddleware,
	)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%s] %s", colouredMethod(method), path)
}
