package sonos

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-multiroom-go/internal/sonos/events"
	"github.com/strefethen/sonos-multiroom-go/internal/sonos/soap"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// fakeZonePlayer answers SOAP actions from a map and records the actions
// it was asked to perform.
type fakeZonePlayer struct {
	mu        sync.Mutex
	responses map[string]string
	actions   []string
}

func newFakeZonePlayer(t *testing.T, responses map[string]string) (*fakeZonePlayer, string) {
	t.Helper()
	p := &fakeZonePlayer{responses: responses}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("SOAPACTION")
		action := strings.TrimSuffix(header[strings.LastIndex(header, "#")+1:], `"`)
		p.mu.Lock()
		p.actions = append(p.actions, action)
		resp := p.responses[action]
		p.mu.Unlock()
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(server.Close)
	return p, strings.TrimPrefix(server.URL, "http://")
}

func (p *fakeZonePlayer) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

func newTestDriver() *Driver {
	return NewDriver(soap.NewClient(time.Second), log.New(io.Discard, "", 0))
}

func TestDriverUnknownZone(t *testing.T) {
	d := newTestDriver()
	err := d.Play(context.Background(), "RINCON_NOPE")
	require.ErrorIs(t, err, ErrUnknownZone)

	_, err = d.GetVolume(context.Background(), "RINCON_NOPE")
	require.ErrorIs(t, err, ErrUnknownZone)
}

func TestDriverCommands(t *testing.T) {
	player, host := newFakeZonePlayer(t, nil)
	d := newTestDriver()
	d.Register("RINCON_A", host)
	ctx := context.Background()

	require.NoError(t, d.Play(ctx, "RINCON_A"))
	require.NoError(t, d.JoinGroup(ctx, "RINCON_A", "RINCON_B"))
	require.NoError(t, d.LeaveGroup(ctx, "RINCON_A"))
	require.NoError(t, d.SetVolume(ctx, "RINCON_A", 12))
	require.NoError(t, d.SetMute(ctx, "RINCON_A", true))
	require.NoError(t, d.SetEQ(ctx, "RINCON_A", zone.EQNightMode, true))

	require.Equal(t, []string{
		"Play",
		"SetAVTransportURI",
		"BecomeCoordinatorOfStandaloneGroup",
		"SetVolume",
		"SetMute",
		"SetEQ",
	}, player.calls())
}

func TestDriverReads(t *testing.T) {
	_, host := newFakeZonePlayer(t, map[string]string{
		"GetVolume":        "<r><CurrentVolume>18</CurrentVolume></r>",
		"GetMute":          "<r><CurrentMute>0</CurrentMute></r>",
		"GetTransportInfo": "<r><CurrentTransportState>PAUSED_PLAYBACK</CurrentTransportState></r>",
		"GetMediaInfo":     "<r><CurrentURI>x-rincon:RINCON_B</CurrentURI></r>",
	})
	d := newTestDriver()
	d.Register("RINCON_A", host)
	ctx := context.Background()

	vol, err := d.GetVolume(ctx, "RINCON_A")
	require.NoError(t, err)
	require.Equal(t, 18, vol)

	mute, err := d.GetMute(ctx, "RINCON_A")
	require.NoError(t, err)
	require.False(t, mute)

	state, err := d.GetTransportState(ctx, "RINCON_A")
	require.NoError(t, err)
	require.Equal(t, zone.TransportPaused, state)

	ref, err := d.GetCurrentTrackRef(ctx, "RINCON_A")
	require.NoError(t, err)
	require.Equal(t, "RINCON_B", ref.FollowID)
	require.False(t, ref.TVInput)
}

func TestTrackRefClassification(t *testing.T) {
	d := newTestDriver()

	require.Equal(t, zone.TrackRef{URI: "x-rincon:RINCON_A"}, d.trackRef("RINCON_A", "x-rincon:RINCON_A"))
	require.True(t, d.trackRef("RINCON_TV", "x-sonos-htastream:RINCON_TV:spdif").TVInput)
	require.Empty(t, d.trackRef("RINCON_A", "x-rincon-queue:RINCON_A#0").FollowID)
}

func TestDriverGroupTopologyCachedAndFiltered(t *testing.T) {
	state := `<ZoneGroupState><ZoneGroups>` +
		`<ZoneGroup Coordinator="RINCON_A" ID="g1"><ZoneGroupMember UUID="RINCON_A"/><ZoneGroupMember UUID="RINCON_B"/><ZoneGroupMember UUID="RINCON_X"/></ZoneGroup>` +
		`<ZoneGroup Coordinator="RINCON_Y" ID="g2"><ZoneGroupMember UUID="RINCON_Y"/></ZoneGroup>` +
		`</ZoneGroups></ZoneGroupState>`
	escaped := strings.NewReplacer("<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(state)
	player, host := newFakeZonePlayer(t, map[string]string{
		"GetZoneGroupState": "<r><ZoneGroupState>" + escaped + "</ZoneGroupState></r>",
	})
	d := newTestDriver()
	d.Register("RINCON_A", host)
	d.Register("RINCON_B", host)
	ctx := context.Background()

	groups, err := d.GetGroupTopology(ctx)
	require.NoError(t, err)
	require.Equal(t, []zone.GroupTopology{{CoordinatorID: "RINCON_A", MemberIDs: []string{"RINCON_A", "RINCON_B"}}}, groups)

	_, err = d.GetGroupTopology(ctx)
	require.NoError(t, err)
	require.Len(t, player.calls(), 1)

	d.TopologyEvent("RINCON_A", events.ZoneGroupTopologyEvent{})
	_, err = d.GetGroupTopology(ctx)
	require.NoError(t, err)
	require.Len(t, player.calls(), 2)
}

func TestDriverGroupTopologyWithoutPlayers(t *testing.T) {
	_, err := newTestDriver().GetGroupTopology(context.Background())
	require.Error(t, err)
}

func TestDriverTranslatesEvents(t *testing.T) {
	d := newTestDriver()
	d.Register("RINCON_A", "127.0.0.1")
	vol := 22
	night := true

	d.TransportEvent("RINCON_A", events.AVTransportEvent{TransportState: "PLAYING", AVTransportURI: "x-rincon:RINCON_B"})
	d.TransportEvent("RINCON_A", events.AVTransportEvent{})
	d.TransportEvent("RINCON_UNKNOWN", events.AVTransportEvent{TransportState: "PLAYING"})
	d.RenderingEvent("RINCON_A", events.RenderingControlEvent{Volume: &vol, NightMode: &night})

	first := <-d.Notifications()
	transport, ok := first.(zone.TransportChanged)
	require.True(t, ok)
	require.Equal(t, zone.TransportPlaying, transport.State)
	require.Equal(t, "RINCON_B", transport.Track.FollowID)

	second := <-d.Notifications()
	rendering, ok := second.(zone.RenderingChanged)
	require.True(t, ok)
	require.Equal(t, 22, *rendering.Volume)
	require.True(t, *rendering.NightMode)
	require.Nil(t, rendering.Mute)

	require.Empty(t, d.Notifications())
}

func TestZoneGroupCacheExpires(t *testing.T) {
	cache := NewZoneGroupCache(time.Second)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set(&soap.ZoneGroupState{})
	require.NotNil(t, cache.Get())

	now = now.Add(2 * time.Second)
	require.Nil(t, cache.Get())
}
