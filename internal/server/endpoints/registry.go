package endpoints

import "github.com/ironsheep/ocr-server/internal/api"

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		&StatusEndpoint{},
		&OCREndpoint{},
		&OCREndpoint{Alternate: true},
	}
}
