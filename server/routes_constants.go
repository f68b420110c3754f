package server

const (
	RouteTabs           = "/api/tabs"
	RouteTab            = "/api/tabs/{tabID}"
	RouteTabLogin       = "/api/tabs/{tabID}/login"
	RouteTabSwitchRole  = "/api/tabs/{tabID}/switch-role"
	RouteTabLogout      = "/api/tabs/{tabID}/logout"
	RouteAvailableRoles = "/api/roles/available"
	RouteWatch          = "/api/watch"
)
