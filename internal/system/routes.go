package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
	router.Method(http.MethodGet, "/v1/system/attention", api.Handler(getAttention(service)))
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info, err := service.GetSystemInfo(r.Context())
		if err != nil {
			service.logger.Printf("SYSTEM: info failed: %v", err)
			return apperrors.NewInternalError("Failed to get system info")
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{"object": "system_info", "info": info})
	}
}

// getAttention handles GET /v1/system/attention
func getAttention(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		items, err := service.GetAttentionItems(r.Context())
		if err != nil {
			service.logger.Printf("SYSTEM: attention failed: %v", err)
			return apperrors.NewInternalError("Failed to get attention items")
		}
		return api.WriteList(w, "/v1/system/attention", items, false)
	}
}
