// Package server exposes the session gateway over HTTP.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/wa-session-gateway/dispatch"
	"github.com/jrsteele09/wa-session-gateway/internal/config"
	"github.com/jrsteele09/wa-session-gateway/sessions"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env        string // Environment ("DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	sessions   *sessions.Manager
	dispatcher *dispatch.Dispatcher
}

func New(config config.Config, manager *sessions.Manager, dispatcher *dispatch.Dispatcher) *Server {
	s := &Server{
		env:        config.GetEnv(),
		mux:        http.NewServeMux(),
		config:     config,
		sessions:   manager,
		dispatcher: dispatcher,
	}

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
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
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
