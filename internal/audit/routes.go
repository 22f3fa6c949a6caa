package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/apperrors"
)

// MaxMessageLength is the maximum allowed length for audit event messages.
const MaxMessageLength = 2000

// validEventLevels defines all valid audit event levels.
var validEventLevels = map[string]EventLevel{
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// ==========================================================================
// Request Types
// ==========================================================================

// CreateEventRequest represents the request body for POST /v1/audit/events.
type CreateEventRequest struct {
	Type        string            `json:"type"`
	Level       string            `json:"level,omitempty"`
	Message     string            `json:"message"`
	Correlation *EventCorrelation `json:"correlation,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
}

// ==========================================================================
// Route Registration
// ==========================================================================

// RegisterRoutes wires audit routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/audit/events/{event_id}", api.Handler(getEvent(service)))
	router.Method(http.MethodPost, "/v1/audit/events", api.Handler(recordEvent(service)))
}

// ==========================================================================
// Handlers
// ==========================================================================

// GET /v1/audit/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for i := range events {
			formatted = append(formatted, formatEvent(&events[i]))
		}
		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}
}

// GET /v1/audit/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewNotFoundResource(apperrors.ErrorCodeEventNotFound, "Event", eventID)
			}
			return apperrors.NewInternalError("Failed to get audit event")
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

// POST /v1/audit/events
func recordEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		if req.Type == "" {
			return apperrors.NewValidationError("type is required", nil)
		}
		if !validEventTypes[req.Type] {
			return apperrors.NewAppError(apperrors.ErrorCodeInvalidEventType, "invalid event type", http.StatusBadRequest, map[string]any{
				"type": req.Type,
			})
		}
		if len(req.Message) > MaxMessageLength {
			return apperrors.NewValidationError("message too long", map[string]any{
				"max_length":    MaxMessageLength,
				"actual_length": len(req.Message),
			})
		}

		input := WriteEventInput{
			Type:    req.Type,
			Message: req.Message,
			Payload: req.Payload,
		}

		if req.Level != "" {
			level, ok := validEventLevels[req.Level]
			if !ok {
				return apperrors.NewValidationError("invalid level", map[string]any{
					"level":        req.Level,
					"valid_levels": []string{"INFO", "WARN", "ERROR"},
				})
			}
			input.Level = &level
		}

		if req.Correlation != nil {
			input.RequestID = req.Correlation.RequestID
			input.ZoneID = req.Correlation.ZoneID
		}
		if input.RequestID == nil {
			if requestID := api.GetRequestID(r); requestID != "" {
				input.RequestID = &requestID
			}
		}

		event, err := service.RecordEvent(input)
		if err != nil {
			return apperrors.NewInternalError("Failed to record audit event")
		}

		return api.WriteResource(w, http.StatusCreated, formatEvent(event))
	}
}

// ==========================================================================
// Helper Functions
// ==========================================================================

func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	if from := query.Get("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' datetime format, expected ISO 8601", map[string]any{"from": from})
		}
		start := parsed.UTC().Format(TimestampLayout)
		filters.StartDate = &start
	}

	if to := query.Get("to"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'to' datetime format, expected ISO 8601", map[string]any{"to": to})
		}
		end := parsed.UTC().Format(TimestampLayout)
		filters.EndDate = &end
	}

	if eventType := query.Get("type"); eventType != "" {
		filters.Type = &eventType
	}

	if level := query.Get("level"); level != "" {
		parsedLevel, ok := validEventLevels[level]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        level,
				"valid_levels": []string{"INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &parsedLevel
	}

	if zoneID := query.Get("zone_id"); zoneID != "" {
		filters.ZoneID = &zoneID
	}
	if requestID := query.Get("request_id"); requestID != "" {
		filters.RequestID = &requestID
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": offsetStr,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}

func formatEvent(event *AuditEvent) map[string]any {
	result := map[string]any{
		"object":    "audit_event",
		"id":        event.EventID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		"type":      event.Type,
		"level":     string(event.Level),
		"message":   event.Message,
	}

	correlation := map[string]any{}
	if event.RequestID != nil {
		correlation["request_id"] = *event.RequestID
	}
	if event.ZoneID != nil {
		correlation["zone_id"] = *event.ZoneID
	}
	if len(correlation) > 0 {
		result["correlation"] = correlation
	}

	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}

	return result
}
