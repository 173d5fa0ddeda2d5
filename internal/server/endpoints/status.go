package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ironsheep/ocr-server/internal/api"
	"github.com/ironsheep/ocr-server/internal/svcctx"
)

// ServiceName is reported by the status endpoint.
const ServiceName = "PaddleOCR Server"

// StatusResponse is the response for the status endpoint.
type StatusResponse struct {
	Status         string `json:"status" yaml:"status"`
	OCRInitialized bool   `json:"ocr_initialized" yaml:"ocr_initialized"`
	Service        string `json:"service" yaml:"service"`
}

// StatusEndpoint handles GET /.
type StatusEndpoint struct{}

var _ api.Endpoint = (*StatusEndpoint)(nil)

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := svcctx.OCRFrom(r.Context())
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:         "running",
		OCRInitialized: svc != nil && svc.Ready(),
		Service:        ServiceName,
	})
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server status and engine initialization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
