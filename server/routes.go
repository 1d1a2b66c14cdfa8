package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	prefix := s.guard.Prefix()

	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...))
	if s.devLoginEnabled() {
		s.RegisterRouteHandler("POST "+RouteAuthDevLogin, ChainMiddleware(s.DevLoginHandler(), s.HTMLMiddleWare()...))
	}

	// Admin section: the prefix root is the public landing page, everything
	// below it has already passed the session guard.
	s.RegisterRouteHandler("GET "+prefix+"/{$}", ChainMiddleware(s.AdminLandingHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+prefix, ChainMiddleware(s.AdminLandingHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+prefix+RouteAdminDashboard, ChainMiddleware(s.AdminDashboardHandler(), s.HTMLMiddleWare()...))

	// Users API
	s.RegisterRouteHandler("GET "+RouteAPIUserRole, ChainMiddleware(s.GetUserRoleHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteAPIUserRole, ChainMiddleware(s.UpdateUserRoleHandler(), s.APIMiddleware(s.RequireAPISession, s.RequireAdmin)...))
	s.RegisterRouteHandler("POST "+RouteAPIUsers, ChainMiddleware(s.BootstrapUserHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIUsers, ChainMiddleware(s.ListUsersHandler(), s.APIMiddleware(s.RequireAPISession, s.RequireAdmin)...))
	s.RegisterRouteHandler("DELETE "+RouteAPIUser, ChainMiddleware(s.DeleteUserHandler(), s.APIMiddleware(s.RequireAPISession, s.RequireAdmin)...))

	// Session API
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware(s.RequireAPISession)...))
	s.RegisterRouteHandler("POST "+RouteAPISessionRenew, ChainMiddleware(s.RenewSessionHandler(), s.APIMiddleware()...))

	// Static files
	s.RegisterRouteHandler("GET "+RouteStatic, http.StripPrefix("/static", s.fileServer))
	s.RegisterRouteHandler("GET "+RouteRobotsTxt, s.RobotsHandler())
}
