package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Tenant session routes
	RouteSessionQR       = "/sessions/{tenantId}/qr"
	RouteSessionQRStream = "/sessions/{tenantId}/qr/ws"
	RouteSessionStatus   = "/sessions/{tenantId}/status"
	RouteSessionStart    = "/sessions/{tenantId}/start"
	RouteSessionLogout   = "/sessions/{tenantId}/logout"

	// Messaging routes
	RouteSendMessage  = "/sessions/{tenantId}/messages"
	RouteSendMessages = "/sessions/{tenantId}/messages:bulk"

	// Operator routes
	RouteSessions = "/sessions"
	RouteHealth   = "/healthz"
)

// pathTenantID is the wildcard name carrying the tenant in every session route
const pathTenantID = "tenantId"
