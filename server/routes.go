package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// Pairing
	s.RegisterRouteHandler("GET "+RouteSessionQR, ChainMiddleware(s.QRHandler(), s.TenantAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionQRStream, ChainMiddleware(s.QRStreamHandler(), s.TenantAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionStatus, ChainMiddleware(s.StatusHandler(), s.TenantAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionStart, ChainMiddleware(s.StartHandler(), s.TenantAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionLogout, ChainMiddleware(s.LogoutHandler(), s.TenantAPIMiddleware()...))

	// Messaging
	s.RegisterRouteHandler("POST "+RouteSendMessage, ChainMiddleware(s.SendMessageHandler(), s.TenantAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSendMessages, ChainMiddleware(s.SendMessagesHandler(), s.TenantAPIMiddleware()...))

	// Operator view. With auth enabled only a token for the reserved operator subject may list tenants.
	s.RegisterRouteHandler("GET "+RouteSessions, ChainMiddleware(s.ListSessionsHandler(), s.APIMiddleware(s.RequireOperatorToken())...))

	// CORS preflight for every session route
	s.RegisterRouteHandler("OPTIONS /sessions/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
}
