package system

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-multiroom-go/internal/sonos/events"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

type stubZones struct {
	zones   []zone.Zone
	pending int
	err     error
}

func (s stubZones) Zones(context.Context) ([]zone.Zone, error) { return s.zones, s.err }
func (s stubZones) Pending(context.Context) (int, error)       { return s.pending, s.err }

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "system.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetSystemInfo(t *testing.T) {
	service := NewService(Deps{
		Zones: stubZones{
			zones:   []zone.Zone{{ID: "a", Power: true}, {ID: "b"}, {ID: "c", Power: true}},
			pending: 2,
		},
		DB:           openDB(t),
		StreamCount:  func() int { return 3 },
		AuditHealthy: func() bool { return true },
		Events:       func() events.ManagerStats { return events.ManagerStats{Enabled: true, ActiveSubscriptions: 9} },
	}, log.New(io.Discard, "", 0))
	service.startTime = time.Now().Add(-time.Hour)

	info, err := service.GetSystemInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, Version, info.Version)
	require.GreaterOrEqual(t, info.Uptime, int64(3600))
	require.True(t, info.SQLiteConnected)
	require.Equal(t, 3, info.ZonesTotal)
	require.Equal(t, 2, info.ZonesPowered)
	require.Equal(t, 2, info.PendingCommands)
	require.Equal(t, 3, info.StreamClients)
	require.Equal(t, 9, info.Events.ActiveSubscriptions)
}

func TestGetSystemInfoPropagatesEngineErrors(t *testing.T) {
	service := NewService(Deps{Zones: stubZones{err: errors.New("stopped")}}, nil)

	_, err := service.GetSystemInfo(context.Background())
	require.Error(t, err)
}

func TestAttentionItems(t *testing.T) {
	service := NewService(Deps{
		Zones:        stubZones{zones: []zone.Zone{{ID: "a"}}},
		AuditHealthy: func() bool { return false },
		Events:       func() events.ManagerStats { return events.ManagerStats{Enabled: true, RenewalFailures: 2} },
		Unbound:      []string{"Garage"},
	}, nil)

	items, err := service.GetAttentionItems(context.Background())
	require.NoError(t, err)

	types := make([]string, 0, len(items))
	for _, item := range items {
		types = append(types, item.Type)
	}
	require.Equal(t, []string{"zone_unbound", "audit_failing", "upnp_no_subscriptions", "upnp_renewal_failures"}, types)
	require.Equal(t, "Garage", items[0].Details["zone_name"])
}

func TestAttentionItemsEmptyWhenHealthy(t *testing.T) {
	service := NewService(Deps{Zones: stubZones{}}, nil)

	items, err := service.GetAttentionItems(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestSystemRoutes(t *testing.T) {
	router := chi.NewRouter()
	RegisterRoutes(router, NewService(Deps{Zones: stubZones{zones: []zone.Zone{{ID: "a"}}}, Unbound: []string{"Den"}}, nil))
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/system/info")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "system_info", info["object"])
	require.Equal(t, float64(1), info["info"].(map[string]any)["zones_total"])

	resp, err = http.Get(server.URL + "/v1/system/attention")
	require.NoError(t, err)
	var list map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Equal(t, "list", list["object"])
	require.Len(t, list["data"].([]any), 1)
}
