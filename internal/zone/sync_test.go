package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncAppliesDeviceState(t *testing.T) {
	h := newHarness(t, []Descriptor{
		desc("living", Config{}),
		desc("kitchen", Config{}),
		{ID: "den", Name: "den", MinVolume: 10, MaxVolume: 100},
	}, Options{})
	h.device.set("living", func(s *deviceState) {
		s.transport = TransportPlaying
		s.volume = 22
	})
	h.device.set("kitchen", func(s *deviceState) {
		s.transport = TransportPlaying
		s.volume = 33
		s.mute = true
		s.track = TrackRef{URI: "x-rincon:living", FollowID: "living"}
	})
	h.device.set("den", func(s *deviceState) { s.volume = 3 })

	require.True(t, h.engine.requestSync("test"))
	h.drain()

	living := h.zone("living")
	kitchen := h.zone("kitchen")
	den := h.zone("den")
	require.Equal(t, 22, living.Volume)
	require.True(t, living.Power)
	require.True(t, living.IsCoordinator)
	require.Equal(t, []string{"kitchen"}, living.MemberIDs)
	require.Equal(t, 33, kitchen.Volume)
	require.True(t, kitchen.Mute)
	require.Equal(t, "living", kitchen.CoordinatorID)
	require.Equal(t, 10, den.Volume)
	require.False(t, den.Power)

	require.True(t, h.lastSnapshot("living").Coordinator)
	require.False(t, h.lastSnapshot("kitchen").Coordinator)
	require.NotEmpty(t, h.globals)
	global := h.globals[len(h.globals)-1]
	require.True(t, global.AnyPowered)
	require.True(t, global.AnyMuted)
}

func TestSyncKeepsCachedValueOnFailure(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("kitchen", Config{})}, Options{})
	h.playing("kitchen", 40)
	h.device.set("kitchen", func(s *deviceState) { s.volume = 12 })
	h.device.failOn("GetVolume kitchen", errOffline)

	require.True(t, h.engine.requestSync("test"))
	h.drain()

	require.Equal(t, 40, h.zone("kitchen").Volume)
	require.True(t, h.zone("kitchen").Power)
}

func TestSyncUsesTopologyWhenTrackFetchFails(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("living", Config{}), desc("kitchen", Config{})}, Options{})
	h.device.set("living", func(s *deviceState) { s.transport = TransportPlaying })
	h.device.set("kitchen", func(s *deviceState) { s.transport = TransportPlaying })
	h.device.topology = []GroupTopology{{CoordinatorID: "living", MemberIDs: []string{"living", "kitchen"}}}
	h.device.failOn("GetCurrentTrackRef kitchen", errOffline)

	require.True(t, h.engine.requestSync("test"))
	h.drain()

	require.Equal(t, "living", h.zone("kitchen").CoordinatorID)
	require.True(t, h.zone("living").IsCoordinator)
}

func TestSyncDroppedWhileRunning(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("kitchen", Config{})}, Options{})

	require.True(t, h.engine.requestSync("first"))
	require.False(t, h.engine.requestSync("second"))
	h.drain()
	require.False(t, h.engine.syncing)
	require.True(t, h.engine.requestSync("third"))
}

func TestSyncDiscardedWhenCommandRanDuringFetch(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("kitchen", Config{})}, Options{})
	h.playing("kitchen", 10)

	require.True(t, h.engine.requestSync("test"))
	// The fetch above saw volume 10; the command lands before its result.
	h.engine.setVolume("kitchen", 30)
	h.device.set("kitchen", func(s *deviceState) { s.volume = 10 })
	h.drain()

	require.Equal(t, 30, h.zone("kitchen").Volume)
	require.Equal(t, 1, h.engine.guards.pending)
}

func TestTransportChangeResolvesGroups(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("living", Config{}), desc("kitchen", Config{})}, Options{})
	h.playing("living", 20)
	track := TrackRef{URI: "x-rincon:living", FollowID: "living"}
	h.device.set("kitchen", func(s *deviceState) {
		s.transport = TransportPlaying
		s.track = track
	})

	h.notify(TransportChanged{ZoneID: "kitchen", State: TransportPlaying, Track: &track})
	h.drain()

	require.Equal(t, "living", h.zone("kitchen").CoordinatorID)
	require.True(t, h.zone("kitchen").Power)
	require.Equal(t, "x-rincon:living", h.zone("kitchen").CurrentTrackRef)
}

func TestTransportChangeDeferredWhileCommandPending(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("living", Config{}), desc("kitchen", Config{})}, Options{})
	h.playing("living", 20)
	require.NoError(t, h.engine.SetVolume("living", 25))
	h.drain()

	h.notify(TransportChanged{
		ZoneID: "kitchen",
		State:  TransportPlaying,
		Track:  &TrackRef{FollowID: "living"},
	})
	h.drain()

	kitchen := h.zone("kitchen")
	require.Equal(t, TransportPlaying, kitchen.TransportState)
	require.Equal(t, "living", kitchen.FollowRef)
	require.False(t, kitchen.IsGrouped)
}

func TestFollowJoinAppliesRelativeGain(t *testing.T) {
	h := newHarness(t, []Descriptor{
		desc("living", Config{RemotelyControlled: true}),
		desc("kitchen", Config{DefaultReferenceVolume: 10}),
	}, Options{RemoteAutoGroup: true})
	h.playing("living", 20)

	h.notify(TransportChanged{
		ZoneID: "kitchen",
		State:  TransportPlaying,
		Track:  &TrackRef{FollowID: "living"},
	})
	h.drain()

	require.Equal(t, 14, h.zone("kitchen").Volume)
	require.Equal(t, []string{"SetVolume kitchen 14"}, h.device.commandCalls())
	require.Equal(t, 1, h.engine.guards.pending)

	h.settle()
	require.Equal(t, 0, h.engine.guards.pending)
}

func TestFollowJoinRequiresToggle(t *testing.T) {
	h := newHarness(t, []Descriptor{
		desc("living", Config{RemotelyControlled: true}),
		desc("kitchen", Config{}),
	}, Options{})
	h.playing("living", 20)

	h.notify(TransportChanged{ZoneID: "kitchen", State: TransportPlaying, Track: &TrackRef{FollowID: "living"}})
	h.drain()

	require.Empty(t, h.device.commandCalls())
	require.Equal(t, 0, h.engine.guards.pending)
}

func TestRenderingChangeUpdatesAuxFlags(t *testing.T) {
	tv := Descriptor{ID: "tv", Name: "tv", MaxVolume: 100, Capabilities: Capabilities{HomeTheater: true}}
	h := newHarness(t, []Descriptor{tv}, Options{})
	h.device.set("tv", func(s *deviceState) { s.mute = true })

	h.notify(RenderingChanged{ZoneID: "tv", Mute: ptr(true), NightMode: ptr(true), SpeechEnhancement: ptr(true)})
	h.drain()

	z := h.zone("tv")
	require.True(t, z.Mute)
	require.True(t, z.NightMode)
	require.True(t, z.SpeechEnhancement)
}

func TestUnknownZoneNotificationIgnored(t *testing.T) {
	h := newHarness(t, []Descriptor{desc("living", Config{})}, Options{})

	h.notify(RenderingChanged{ZoneID: "garage", Volume: ptr(10)})
	h.notify(TransportChanged{ZoneID: "garage", State: TransportPlaying})
	h.drain()

	require.Empty(t, h.device.Calls())
}
