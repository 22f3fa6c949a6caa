package audit

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(config.Config{AuditRetentionDays: 7}, setupTestDB(t), log.New(io.Discard, "", 0))
}

func TestServiceRecordCommand(t *testing.T) {
	service := newTestService(t)
	service.Start()

	service.RecordCommand(zone.CommandRecord{Action: "volume", ZoneID: "RINCON_LIVING", ZoneName: "Living Room", Value: 25})
	service.RecordCommand(zone.CommandRecord{Action: "mute_all", Value: true})
	service.Stop()

	events, total, hasMore, err := service.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.False(t, hasMore)

	byType := map[string]AuditEvent{}
	for _, e := range events {
		byType[e.Type] = e
	}
	zoneEvent := byType[string(EventZoneCommand)]
	require.Equal(t, "RINCON_LIVING", *zoneEvent.ZoneID)
	require.Equal(t, "Living Room volume set to 25", zoneEvent.Message)
	require.Equal(t, "Living Room", zoneEvent.Payload["zone_name"])

	controlEvent := byType[string(EventControlCommand)]
	require.Nil(t, controlEvent.ZoneID)
	require.Equal(t, true, controlEvent.Payload["value"])
	require.True(t, service.IsHealthy())
}

func TestServiceQueryClampsLimit(t *testing.T) {
	service := newTestService(t)

	_, _, _, err := service.QueryEvents(EventQueryFilters{Limit: MaxQueryLimit * 5})
	require.NoError(t, err)

	_, err = service.GetEvent("missing")
	var notFound *EventNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func newAuditRouter(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	service := newTestService(t)
	router := chi.NewRouter()
	router.Use(api.RequestIDMiddleware)
	RegisterRoutes(router, service)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, service
}

func TestAuditRoutes(t *testing.T) {
	server, _ := newAuditRouter(t)

	resp, err := http.Post(server.URL+"/v1/audit/events", "application/json", strings.NewReader(
		`{"type":"CONFIG_RELOADED","level":"WARN","message":"zones.yaml changed","correlation":{"zone_id":"RINCON_DEN"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "audit_event", created["object"])
	correlation := created["correlation"].(map[string]any)
	require.Equal(t, "RINCON_DEN", correlation["zone_id"])
	require.NotEmpty(t, correlation["request_id"])

	resp, err = http.Get(server.URL + "/v1/audit/events/" + created["id"].(string))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/v1/audit/events?zone_id=RINCON_DEN&level=WARN")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, "list", list["object"])
	require.Len(t, list["data"].([]any), 1)
}

func TestAuditRoutesValidation(t *testing.T) {
	server, _ := newAuditRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown type", http.MethodPost, "/v1/audit/events", `{"type":"ROUTINE_CREATED","message":"x"}`, http.StatusBadRequest, "INVALID_EVENT_TYPE"},
		{"missing type", http.MethodPost, "/v1/audit/events", `{"message":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad level", http.MethodPost, "/v1/audit/events", `{"type":"SYSTEM_ERROR","level":"LOUD","message":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad limit", http.MethodGet, "/v1/audit/events?limit=0", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad from", http.MethodGet, "/v1/audit/events?from=yesterday", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing event", http.MethodGet, "/v1/audit/events/nope", "", http.StatusNotFound, "EVENT_NOT_FOUND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, server.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)

			var payload map[string]map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			require.Equal(t, tc.code, payload["error"]["code"])
		})
	}
}
