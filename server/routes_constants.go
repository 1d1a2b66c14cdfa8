package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex  = "/{$}"
	RouteHealth = "/healthz"

	// Auth Routes - Login & Logout
	RouteAuthLogin    = "/auth/login"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthCallback = "/auth/callback"
	RouteAuthDevLogin = "/auth/dev-login"

	// API Routes
	RouteAPIUsers        = "/api/users"
	RouteAPIUser         = "/api/users/{id}"
	RouteAPIUserRole     = "/api/users/{id}/role"
	RouteAPISession      = "/api/session"
	RouteAPISessionRenew = "/api/session/renew"

	// Admin Routes (relative to the protected prefix)
	RouteAdminDashboard = "/dashboard"

	// Static Asset Routes
	RouteStatic    = "/static/"
	RouteRobotsTxt = "/robots.txt"
)
