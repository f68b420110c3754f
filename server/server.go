// Package server exposes the dashboard surface over HTTP. It is a thin
// consumer: it reads aggregated tab state and issues commands to the role
// service; it holds no authoritative state of its own.
package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-sessions/auth"
	"github.com/jrsteele09/go-portal-sessions/notify"
	"github.com/jrsteele09/go-portal-sessions/tabs"
)

type Server struct {
	mux     *http.ServeMux
	routes  []string
	manager *tabs.Manager
	roles   *auth.RoleService
	watcher *notify.Watcher
	logger  zerolog.Logger
}

// Option modifies a Server instance.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(manager *tabs.Manager, roles *auth.RoleService, watcher *notify.Watcher, options ...Option) (*Server, error) {
	if manager == nil {
		return nil, errors.New("[Server New] manager is required")
	}
	if roles == nil {
		return nil, errors.New("[Server New] role service is required")
	}
	if watcher == nil {
		return nil, errors.New("[Server New] watcher is required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		manager: manager,
		roles:   roles,
		watcher: watcher,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		s.logger.Debug().Str("route", route).Msg("registered")
	}
}
