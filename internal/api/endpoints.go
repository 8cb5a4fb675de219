package api

// Build service endpoints
const (
	Health   = "/healthz"
	Metrics  = "/metrics"
	Download = "/download/:token"

	// Versioned API prefix
	V1Prefix = "/v1"

	// Build endpoints, relative to the version prefix
	AppBuilds   = "/apps/:app_id/builds"
	BuildByID   = "/builds/:build_id"
	BuildCancel = "/builds/:build_id/cancel"
)

// PublicEndpoints defines endpoints that don't require a caller identity
var PublicEndpoints = map[string]bool{
	Health:   true,
	Metrics:  true,
	Download: true,
}
