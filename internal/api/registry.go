package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// initMiddleware wraps handlers that require an initialized OCR engine.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() && initMiddleware != nil {
			handler = initMiddleware(handler)
		}
		pattern := method + " " + path
		if path == "/" {
			// Exact match; a bare "/" would catch every unknown path.
			pattern = method + " /{$}"
		}
		mux.HandleFunc(pattern, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// getServerURL is called at runtime to get the server URL.
// Endpoints without a CLI form return nil from Command and are skipped.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running OCR server via HTTP.

These commands require a running server (ocr-server serve).
Use --server to specify a custom server URL.

Examples:
  ocr-server api status                   # Check whether the engine is up
  ocr-server api ocr receipt.png          # Recognize with the default engine
  ocr-server api ocr-chinese menu.jpg     # Recognize with the Chinese engine`,
	}

	for _, ep := range r.endpoints {
		if cmd := ep.Command(getServerURL); cmd != nil {
			apiCmd.AddCommand(cmd)
		}
	}

	return apiCmd
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
