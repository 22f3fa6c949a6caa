package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-multiroom-go/internal/auth"
	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/discovery"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

const testZoneFile = `
zones:
  - name: Living Room
    remotelyControlled: true
  - name: Kitchen
    priorities: [Living Room]
  - name: Garage
control:
  remoteVolumeOverride: true
`

type stubDevice struct {
	mu      sync.Mutex
	volumes map[string]int
}

func (d *stubDevice) Play(context.Context, string) error              { return nil }
func (d *stubDevice) JoinGroup(context.Context, string, string) error { return nil }
func (d *stubDevice) LeaveGroup(context.Context, string) error        { return nil }
func (d *stubDevice) SetMute(context.Context, string, bool) error     { return nil }
func (d *stubDevice) SetEQ(context.Context, string, zone.EQType, bool) error {
	return nil
}
func (d *stubDevice) SetVolume(_ context.Context, id string, v int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volumes[id] = v
	return nil
}
func (d *stubDevice) GetVolume(_ context.Context, id string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volumes[id], nil
}
func (d *stubDevice) GetMute(context.Context, string) (bool, error) { return false, nil }
func (d *stubDevice) GetTransportState(context.Context, string) (zone.TransportState, error) {
	return zone.TransportStopped, nil
}
func (d *stubDevice) GetCurrentTrackRef(context.Context, string) (zone.TrackRef, error) {
	return zone.TrackRef{}, nil
}
func (d *stubDevice) GetGroupTopology(context.Context) ([]zone.GroupTopology, error) {
	return nil, nil
}
func (d *stubDevice) Notifications() <-chan zone.Notification { return nil }

func testPlayers() []*discovery.Player {
	return []*discovery.Player{
		{UUID: "RINCON_LIVING", Host: "10.0.0.10", RoomName: "Living Room", ZoneMaster: true, HTControl: true},
		{UUID: "RINCON_KITCHEN", Host: "10.0.0.11", RoomName: "Kitchen", ZoneMaster: true},
		{UUID: "RINCON_SUB", Host: "10.0.0.12", RoomName: "Living Room"},
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	zonesPath := filepath.Join(dir, "zones.yaml")
	require.NoError(t, os.WriteFile(zonesPath, []byte(testZoneFile), 0o644))
	return config.Config{
		Port:                     "9000",
		SQLiteDBPath:             filepath.Join(dir, "data", "test.db"),
		NodeEnv:                  "development",
		JWTSecret:                strings.Repeat("s", 32),
		JWTAccessTokenExpirySec:  3600,
		JWTRefreshTokenExpirySec: 7200,
		AuditRetentionDays:       30,
		SonosTimeoutMs:           1000,
		ZonesConfigPath:          zonesPath,
		SyncSchedule:             "@every 1h",
		PowerSettleMs:            1,
		VolumeSettleMs:           1,
		UICorrectionMs:           1,
		RemoteVolumeDebounceMs:   10,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, config.Config, *stubDevice) {
	t.Helper()
	cfg := testConfig(t)
	device := &stubDevice{volumes: map[string]int{"RINCON_LIVING": 20, "RINCON_KITCHEN": 15}}
	handler, shutdown, err := NewHandler(cfg, Options{
		Players: testPlayers(),
		Device:  device,
		Logger:  log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, shutdown(ctx))
	})
	return server, cfg, device
}

func authedGet(t *testing.T, cfg config.Config, url string) (int, map[string]any) {
	t.Helper()
	tokens, err := auth.GenerateTokenPair(cfg, auth.TokenPayload{Sub: "surface-1", SurfaceName: "Hallway Panel"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthIsPublic(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "sonos-multiroom", body["service"])
}

func TestZonesRequireAuth(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/zones")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestZonesBoundFromDiscovery(t *testing.T) {
	server, cfg, _ := newTestServer(t)

	status, body := authedGet(t, cfg, server.URL+"/v1/zones")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].([]any)
	require.Len(t, data, 2)

	require.Eventually(t, func() bool {
		_, zone := authedGet(t, cfg, server.URL+"/v1/zones/kitchen")
		return zone["volume"] == float64(15)
	}, 2*time.Second, 10*time.Millisecond)

	_, control := authedGet(t, cfg, server.URL+"/v1/control")
	require.Equal(t, true, control["remote_volume_override"])
}

func TestStartupIsAudited(t *testing.T) {
	server, cfg, _ := newTestServer(t)

	require.Eventually(t, func() bool {
		status, body := authedGet(t, cfg, server.URL+"/v1/audit/events?type=SYSTEM_STARTUP")
		return status == http.StatusOK && len(body["data"].([]any)) == 1
	}, 2*time.Second, 20*time.Millisecond)

	_, body := authedGet(t, cfg, server.URL+"/v1/audit/events?type=DEVICE_DISCOVERED")
	require.Len(t, body["data"].([]any), 2)
}

func TestBindZones(t *testing.T) {
	file, err := config.ParseZones([]byte(testZoneFile))
	require.NoError(t, err)

	bindings := bindZones(file, testPlayers(), log.New(io.Discard, "", 0))
	require.Len(t, bindings, 2)
	require.Equal(t, "RINCON_LIVING", bindings[0].descriptor.ID)
	require.True(t, bindings[0].descriptor.Capabilities.HomeTheater)
	require.Equal(t, "RINCON_KITCHEN", bindings[1].descriptor.ID)
	require.Equal(t, []string{"Living Room"}, bindings[1].descriptor.Config.PriorityList)
}

func TestReloadConfigsKeyedByID(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	file, err := config.ParseZones([]byte(testZoneFile))
	require.NoError(t, err)
	bindings := bindZones(file, testPlayers(), logger)

	reloaded, err := config.ParseZones([]byte(`
zones:
  - name: Kitchen
    defaultGroupVolume: 12
  - name: Den
`))
	require.NoError(t, err)

	configs := reloadConfigs(reloaded, bindings, logger)
	require.Len(t, configs, 1)
	require.Equal(t, 12, configs["RINCON_KITCHEN"].DefaultReferenceVolume)
}

func TestSystemAttentionListsUnboundZones(t *testing.T) {
	server, cfg, _ := newTestServer(t)

	status, body := authedGet(t, cfg, server.URL+"/v1/system/attention")
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, "zone_unbound", items[0].(map[string]any)["type"])
}
