package httpapi

import (
	"net/http"
)

// SetupRouter sets up HTTP routes. Everything except /version requires the
// API key when one is configured.
func SetupRouter(handler *Handler, apiKey string) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /jobs", handler.CreateJob)
	api.HandleFunc("GET /jobs/{jobId}", handler.GetJobStatus)
	api.HandleFunc("GET /jobs/{jobId}/report", handler.GetJobReport)
	api.HandleFunc("GET /jobs/{jobId}/archive", handler.GetJobArchive)
	api.HandleFunc("POST /jobs/{jobId}/cancel", handler.CancelJob)
	api.HandleFunc("GET /packages/{packageId}/job", handler.GetJobByPackage)
	api.HandleFunc("POST /packages/{packageId}/cancel", handler.CancelJobByPackage)

	root := http.NewServeMux()
	root.HandleFunc("GET /version", handler.GetVersion)
	root.Handle("/", AuthMiddleware(apiKey, api))
	return root
}
