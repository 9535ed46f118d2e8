package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos.
// API routes are mounted below the configured API prefix and also answer with a
// trailing slash.
const (
	// Token Routes
	RouteToken        = "/token"
	RouteTokenRefresh = "/token-refresh"

	// Principal Routes
	RouteRegister            = "/register"
	RouteCurrentUser         = "/current-user"
	RouteCurrentUserMe       = "/current-user/me"
	RouteCurrentUserPassword = "/current-user-password/me"
	RouteUserDelete          = "/user-delete/me"

	// Liveness, never prefixed
	RouteHealth = "/healthz"
)
