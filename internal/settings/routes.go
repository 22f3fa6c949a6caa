package settings

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
)

// RegisterRoutes wires settings routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/settings/control", api.Handler(getControlSettings(service)))
}

// GET /v1/settings/control
func getControlSettings(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		settings, err := service.ControlSettings(ControlSettings{})
		if err != nil {
			return apperrors.NewInternalError("Failed to get control settings")
		}

		result := map[string]any{
			"object":                 "control_settings",
			"remote_volume_override": settings.RemoteVolumeOverride,
			"remote_auto_group":      settings.RemoteAutoGroup,
		}
		if !settings.UpdatedAt.IsZero() {
			result["updated_at"] = settings.UpdatedAt.UTC().Format(time.RFC3339)
		}
		return api.WriteResource(w, http.StatusOK, result)
	}
}
