package surface

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-multiroom-go/internal/auth"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

func dialHub(t *testing.T) (*Hub, *fakeController, *websocket.Conn) {
	t.Helper()
	state := &fakeState{
		zones: []zone.Zone{
			{ID: "RINCON_LIVING", Name: "Living Room", Power: true, Volume: 20},
			{ID: "RINCON_KITCHEN", Name: "Kitchen"},
		},
		global: zone.GlobalSnapshot{AnyPowered: true},
	}
	ctrl := &fakeController{}
	hub := NewHub(state, ctrl, log.New(io.Discard, "", 0))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return hub, ctrl, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamSendsSnapshotFirst(t *testing.T) {
	hub, _, conn := dialHub(t)

	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeSnapshot, msg.Type)

	raw, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var snapshot SnapshotPayload
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	require.Len(t, snapshot.Zones, 2)
	require.Equal(t, "Living Room", snapshot.Zones[0].Name)
	require.Equal(t, 20, snapshot.Zones[0].Volume)
	require.True(t, snapshot.Global.AnyPowered)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStreamBroadcastsZoneSnapshots(t *testing.T) {
	hub, _, conn := dialHub(t)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.PublishZone(zone.Snapshot{ZoneID: "RINCON_KITCHEN", Name: "Kitchen", Power: true, Volume: 12})
	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeZone, msg.Type)
	require.Equal(t, "RINCON_KITCHEN", msg.Payload.(map[string]any)["zone_id"])

	hub.PublishGlobal(zone.GlobalSnapshot{AnyMuted: true})
	msg = readMessage(t, conn)
	require.Equal(t, MsgTypeGlobal, msg.Type)
	require.Equal(t, true, msg.Payload.(map[string]any)["any_muted"])
}

func TestStreamCommands(t *testing.T) {
	_, ctrl, conn := dialHub(t)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(StreamMessage{
		Type:    MsgTypeCommand,
		ID:      "req-1",
		Command: json.RawMessage(`{"action":"volume","zone_id":"RINCON_LIVING","volume":35}`),
	}))
	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeResponse, msg.Type)
	require.Equal(t, "req-1", msg.ID)
	require.Equal(t, []string{"SetVolume RINCON_LIVING 35"}, ctrl.Calls())

	require.NoError(t, conn.WriteJSON(StreamMessage{
		Type:    MsgTypeCommand,
		ID:      "req-2",
		Command: json.RawMessage(`{"action":"power"}`),
	}))
	msg = readMessage(t, conn)
	require.Equal(t, MsgTypeError, msg.Type)
	require.Equal(t, "req-2", msg.ID)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: MsgTypePing, ID: "p"}))
	msg = readMessage(t, conn)
	require.Equal(t, MsgTypePong, msg.Type)
	require.Equal(t, "p", msg.ID)
}

func TestStreamCloseDisconnectsClients(t *testing.T) {
	hub, _, conn := dialHub(t)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	require.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

// changingState publishes a zone change while the connect snapshot is
// being read.
type changingState struct {
	fakeState
	hub *Hub
}

func (s *changingState) Zones(ctx context.Context) ([]zone.Zone, error) {
	s.hub.PublishZone(zone.Snapshot{ZoneID: "RINCON_KITCHEN", Name: "Kitchen", Power: true, Volume: 9})
	return s.fakeState.Zones(ctx)
}

func TestStreamKeepsChangesMadeWhileConnecting(t *testing.T) {
	state := &changingState{fakeState: fakeState{zones: []zone.Zone{{ID: "RINCON_KITCHEN", Name: "Kitchen"}}}}
	hub := NewHub(state, &fakeController{}, log.New(io.Discard, "", 0))
	state.hub = hub
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, MsgTypeSnapshot, readMessage(t, conn).Type)
	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeZone, msg.Type)
	payload := msg.Payload.(map[string]any)
	require.Equal(t, "RINCON_KITCHEN", payload["zone_id"])
	require.Equal(t, float64(9), payload["volume"])
}

func TestStreamRejectsCommandsFromMonitorSurface(t *testing.T) {
	ctrl := &fakeController{}
	hub := NewHub(&fakeState{}, ctrl, log.New(io.Discard, "", 0))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.User{Sub: "s", SurfaceName: "Hall Display", Scope: auth.ScopeMonitor, Type: auth.TokenTypeAccess}
		hub.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	}))
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, MsgTypeSnapshot, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(StreamMessage{
		Type:    MsgTypeCommand,
		ID:      "req-1",
		Command: json.RawMessage(`{"action":"sync"}`),
	}))
	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeError, msg.Type)
	require.Equal(t, "req-1", msg.ID)
	require.Empty(t, ctrl.Calls())

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: MsgTypePing, ID: "p"}))
	require.Equal(t, MsgTypePong, readMessage(t, conn).Type)
}
