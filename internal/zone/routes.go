package zone

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
)

// ==========================================================================
// Request Types
// ==========================================================================

// PowerRequest is the body for POST /v1/zones/{zone_id}/power.
type PowerRequest struct {
	On *bool `json:"on"`
}

// VolumeRequest is the body for POST /v1/zones/{zone_id}/volume.
type VolumeRequest struct {
	Volume *int `json:"volume"`
}

// EQRequest is the body for POST /v1/zones/{zone_id}/eq.
type EQRequest struct {
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled"`
}

// ToggleRequest is the body for the global control toggles.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// ==========================================================================
// Route Registration
// ==========================================================================

// RegisterRoutes wires zone and control routes to the router.
func RegisterRoutes(router chi.Router, engine *Engine) {
	router.Method(http.MethodGet, "/v1/zones", api.Handler(listZones(engine)))
	router.Method(http.MethodGet, "/v1/zones/{zone_id}", api.Handler(getZone(engine)))
	router.Method(http.MethodPost, "/v1/zones/{zone_id}/power", api.Handler(setZonePower(engine)))
	router.Method(http.MethodPost, "/v1/zones/{zone_id}/volume", api.Handler(setZoneVolume(engine)))
	router.Method(http.MethodPost, "/v1/zones/{zone_id}/eq", api.Handler(setZoneEQ(engine)))

	router.Method(http.MethodGet, "/v1/control", api.Handler(getControl(engine)))
	router.Method(http.MethodPost, "/v1/control/power-off", api.Handler(powerOffAll(engine)))
	router.Method(http.MethodPost, "/v1/control/mute", api.Handler(toggle(engine.SetMuteAll, "mute")))
	router.Method(http.MethodPost, "/v1/control/remote-volume", api.Handler(toggle(engine.SetRemoteVolumeOverride, "remote_volume_override")))
	router.Method(http.MethodPost, "/v1/control/remote-auto-group", api.Handler(toggle(engine.SetRemoteAutoGroup, "remote_auto_group")))
	router.Method(http.MethodPost, "/v1/sync", api.Handler(requestSync(engine)))
}

// ==========================================================================
// Handlers
// ==========================================================================

// GET /v1/zones
func listZones(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		zones, err := engine.Zones(r.Context())
		if err != nil {
			return mapEngineError(err)
		}
		formatted := make([]map[string]any, 0, len(zones))
		for i := range zones {
			formatted = append(formatted, formatZone(&zones[i]))
		}
		return api.WriteList(w, "/v1/zones", formatted, false)
	}
}

// GET /v1/zones/{zone_id}
func getZone(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		z, err := engine.Zone(r.Context(), chi.URLParam(r, "zone_id"))
		if err != nil {
			return mapEngineError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatZone(&z))
	}
}

// POST /v1/zones/{zone_id}/power
func setZonePower(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req PowerRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.On == nil {
			return apperrors.NewValidationError("on is required", nil)
		}
		zoneID := chi.URLParam(r, "zone_id")
		if err := engine.SetPower(zoneID, *req.On); err != nil {
			return mapEngineError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object":  "zone_command",
			"zone_id": zoneID,
			"action":  "power",
			"on":      *req.On,
			"status":  "accepted",
		})
	}
}

// POST /v1/zones/{zone_id}/volume
func setZoneVolume(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req VolumeRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.Volume == nil {
			return apperrors.NewValidationError("volume is required", nil)
		}
		zoneID := chi.URLParam(r, "zone_id")
		z, err := engine.Zone(r.Context(), zoneID)
		if err != nil {
			return mapEngineError(err)
		}
		if !z.Config.VolumeControlled {
			return apperrors.NewValidationError("zone is not volume controlled", map[string]any{"zone_id": z.ID})
		}
		if err := engine.SetVolume(z.ID, *req.Volume); err != nil {
			return mapEngineError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object":  "zone_command",
			"zone_id": z.ID,
			"action":  "volume",
			"volume":  Clamp(*req.Volume, z.MinVolume, z.MaxVolume),
			"status":  "accepted",
		})
	}
}

// POST /v1/zones/{zone_id}/eq
func setZoneEQ(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req EQRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.Enabled == nil {
			return apperrors.NewValidationError("enabled is required", nil)
		}
		var eq EQType
		switch req.Type {
		case "night_mode", string(EQNightMode):
			eq = EQNightMode
		case "speech_enhancement", string(EQSpeechEnhancement):
			eq = EQSpeechEnhancement
		default:
			return apperrors.NewValidationError("type must be night_mode or speech_enhancement", map[string]any{"type": req.Type})
		}
		zoneID := chi.URLParam(r, "zone_id")
		if err := engine.SetEQ(r.Context(), zoneID, eq, *req.Enabled); err != nil {
			return mapEngineError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object":  "zone_command",
			"zone_id": zoneID,
			"action":  string(eq),
			"enabled": *req.Enabled,
			"status":  "accepted",
		})
	}
}

// GET /v1/control
func getControl(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		snap, err := engine.Global(r.Context())
		if err != nil {
			return mapEngineError(err)
		}
		pending, err := engine.Pending(r.Context())
		if err != nil {
			return mapEngineError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":                 "control",
			"any_powered":            snap.AnyPowered,
			"any_muted":              snap.AnyMuted,
			"remote_volume_override": snap.RemoteVolumeOverride,
			"remote_auto_group":      snap.RemoteAutoGroup,
			"pending_operations":     pending,
		})
	}
}

// POST /v1/control/power-off
func powerOffAll(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := engine.PowerOffAll(); err != nil {
			return mapEngineError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object": "control_command",
			"action": "power_off",
			"status": "accepted",
		})
	}
}

func toggle(apply func(bool) error, action string) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req ToggleRequest
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.Enabled == nil {
			return apperrors.NewValidationError("enabled is required", nil)
		}
		if err := apply(*req.Enabled); err != nil {
			return mapEngineError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object":  "control_command",
			"action":  action,
			"enabled": *req.Enabled,
			"status":  "accepted",
		})
	}
}

// POST /v1/sync
func requestSync(engine *Engine) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := engine.RequestSync("api request " + api.GetRequestID(r)); err != nil {
			return mapEngineError(err)
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object": "sync_request",
			"status": "accepted",
		})
	}
}

// ==========================================================================
// Helpers
// ==========================================================================

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("Invalid request body", map[string]any{"error": err.Error()})
	}
	return nil
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, ErrZoneNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeZoneNotFound, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrUnsupported):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, ErrEngineStopped):
		return apperrors.NewServiceUnavailableError("Zone engine is not running")
	default:
		return err
	}
}

func formatZone(z *Zone) map[string]any {
	members := z.MemberIDs
	if members == nil {
		members = []string{}
	}
	result := map[string]any{
		"object":           "zone",
		"id":               z.ID,
		"name":             z.Name,
		"state":            string(z.State()),
		"power":            z.Power,
		"volume":           z.Volume,
		"min_volume":       z.MinVolume,
		"max_volume":       z.MaxVolume,
		"reference_volume": z.ReferenceVolume,
		"remote_volume":    z.RemoteVolume,
		"mute":             z.Mute,
		"is_grouped":       z.IsGrouped,
		"is_coordinator":   z.IsCoordinator,
		"member_ids":       members,
		"transport_state":  string(z.TransportState),
		"tv_input":         z.TVInput,
		"capabilities":     z.Capabilities,
		"volume_lock":      z.VolumeLockDepth,
	}
	if z.CoordinatorID != "" {
		result["coordinator_id"] = z.CoordinatorID
	}
	if z.Capabilities.HomeTheater {
		result["night_mode"] = z.NightMode
		result["speech_enhancement"] = z.SpeechEnhancement
	}
	return result
}
