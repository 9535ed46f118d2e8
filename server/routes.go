package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))

	// Token issuance and refresh
	s.registerAPIRoute(http.MethodPost, RouteToken, s.TokenHandler())
	s.registerAPIRoute(http.MethodPost, RouteTokenRefresh, s.TokenRefreshHandler())

	// Registration
	s.registerAPIRoute(http.MethodPost, RouteRegister, s.RegisterHandler())

	// Principal operations, Bearer access token required
	s.registerAPIRoute(http.MethodGet, RouteCurrentUser, s.CurrentUserHandler(), s.RequireAuth())
	s.registerAPIRoute(http.MethodPut, RouteCurrentUserMe, s.UpdateCurrentUserHandler(), s.RequireAuth())
	s.registerAPIRoute(http.MethodPut, RouteCurrentUserPassword, s.ChangePasswordHandler(), s.RequireAuth())
	s.registerAPIRoute(http.MethodDelete, RouteUserDelete, s.DeleteCurrentUserHandler(), s.RequireAuth())
}

// registerAPIRoute mounts handler under the API prefix, with and without a trailing
// slash, plus a CORS preflight route for both paths.
func (s *Server) registerAPIRoute(method, route string, handler http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) {
	chained := ChainMiddleware(handler, s.APIMiddleware(mw...)...)
	preflight := ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...)

	path := s.prefix + route
	for _, p := range []string{path, path + "/{$}"} {
		s.RegisterRouteHandler(method+" "+p, chained)
		s.mux.Handle(http.MethodOptions+" "+p, preflight)
	}
}
