package api

import (
	"encoding/json"
	"net/http"

	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
)

// =============================================================================
// Stripe API Standard Response Types
// =============================================================================

// StripeListResponse is the Stripe-style list response for all collection endpoints.
// Example: {"object": "list", "data": [...], "has_more": false, "url": "/v1/zones"}
type StripeListResponse struct {
	Object  string `json:"object"`   // Always "list"
	Data    any    `json:"data"`     // Array of resources
	HasMore bool   `json:"has_more"` // Whether more items exist beyond this page
	URL     string `json:"url"`      // The URL for this list endpoint
}

// StripeErrorResponse wraps errors in Stripe format.
type StripeErrorResponse struct {
	Error apperrors.StripeErrorBody `json:"error"`
}

// =============================================================================
// Core Response Functions
// =============================================================================

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an AppError into the Stripe-style error response.
// Response format: {"error": {"type": "...", "code": "...", "message": "..."}}
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	_ = WriteJSON(w, appErr.StatusCode, StripeErrorResponse{Error: appErr.StripeErrorBody()})
}

// WriteList writes a Stripe-style list response.
// Produces: {"object": "list", "data": [...], "has_more": false, "url": "/v1/zones"}
func WriteList(w http.ResponseWriter, url string, data any, hasMore bool) error {
	return WriteJSON(w, http.StatusOK, StripeListResponse{
		Object:  "list",
		Data:    data,
		HasMore: hasMore,
		URL:     url,
	})
}

// WriteResource writes a single resource directly. The resource should
// already carry its "object" field.
func WriteResource(w http.ResponseWriter, status int, resource any) error {
	return WriteJSON(w, status, resource)
}

// WriteAction writes an action result directly.
// Example: WriteAction(w, http.StatusAccepted, map[string]any{"object": "zone_command", ...})
func WriteAction(w http.ResponseWriter, status int, result any) error {
	return WriteJSON(w, status, result)
}
