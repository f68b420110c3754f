package server

import "net/http"

func (s *Server) initRoutes() {
	// Tab lifecycle
	s.RegisterRouteFunc("POST "+RouteTabs, ChainMiddleware(s.RegisterTabHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("DELETE "+RouteTab, ChainMiddleware(s.DeregisterTabHandler(), s.APIMiddleware()...))

	// Aggregated state
	s.RegisterRouteFunc("GET "+RouteTabs, ChainMiddleware(s.ListTabsHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteTab, ChainMiddleware(s.GetTabHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAvailableRoles, ChainMiddleware(s.AvailableRolesHandler(), s.APIMiddleware()...))

	// Commands
	s.RegisterRouteFunc("POST "+RouteTabLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteTabSwitchRole, ChainMiddleware(s.SwitchRoleHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteTabLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Live snapshot stream
	s.RegisterRouteFunc("GET "+RouteWatch, ChainMiddleware(s.WatchHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
}

func (s *Server) APIMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.JSONMiddleware,
	}
}
