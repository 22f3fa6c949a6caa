package zone

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// remoteGroup builds living (20) leading kitchen (15) and den (18) with
// remote volume propagation enabled.
func remoteGroup(t *testing.T, denMax int) *harness {
	t.Helper()
	h := newHarness(t, []Descriptor{
		desc("living", Config{RemotelyControlled: true}),
		desc("kitchen", Config{}),
		{ID: "den", Name: "den", MinVolume: 0, MaxVolume: denMax},
	}, Options{RemoteVolumeOverride: true})
	h.playing("living", 20)
	h.playing("kitchen", 15)
	h.playing("den", 18)
	h.group("living", "kitchen", "den")
	return h
}

func setVolumeCalls(calls []string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, "SetVolume") {
			out = append(out, c)
		}
	}
	return out
}

func TestRemoteVolumeShiftsWholeGroup(t *testing.T) {
	h := remoteGroup(t, 100)

	h.device.set("kitchen", func(s *deviceState) { s.volume = 20 })
	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(20)})
	h.drain()

	for _, id := range []string{"living", "kitchen", "den"} {
		require.Equal(t, 1, h.zone(id).VolumeLockDepth, id)
	}
	require.Empty(t, h.device.Calls())

	h.clock.Advance(DefaultRemoteDebounce)
	h.drain()

	require.Equal(t, 25, h.zone("living").Volume)
	require.Equal(t, 20, h.zone("kitchen").Volume)
	require.Equal(t, 23, h.zone("den").Volume)
	require.ElementsMatch(t, []string{"SetVolume living 25", "SetVolume den 23"}, setVolumeCalls(h.device.Calls()))

	for _, id := range []string{"living", "kitchen", "den"} {
		require.Equal(t, 0, h.zone(id).VolumeLockDepth, id)
	}
	// The window closing triggers a resync.
	require.Contains(t, h.device.Calls(), "GetGroupTopology")
}

func TestRemoteVolumeNestedWindowsReconcileOnce(t *testing.T) {
	h := remoteGroup(t, 100)

	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(20)})
	h.drain()
	h.clock.Advance(time.Second)

	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(22)})
	h.drain()
	require.Equal(t, 2, h.zone("living").VolumeLockDepth)

	// First window expires with a newer one pending.
	h.clock.Advance(time.Second)
	h.drain()
	require.Empty(t, h.device.Calls())
	require.Equal(t, 1, h.zone("kitchen").VolumeLockDepth)

	h.clock.Advance(time.Second)
	h.drain()
	require.ElementsMatch(t, []string{"SetVolume living 27", "SetVolume den 25"}, setVolumeCalls(h.device.Calls()))
	for _, id := range []string{"living", "kitchen", "den"} {
		require.Equal(t, 0, h.zone(id).VolumeLockDepth, id)
	}
}

func TestRemoteVolumeFallbackWhenClamped(t *testing.T) {
	h := remoteGroup(t, 20)

	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(20)})
	h.drain()
	h.clock.Advance(DefaultRemoteDebounce)
	h.drain()

	require.Equal(t, 22, h.zone("living").Volume)
	require.Equal(t, 17, h.zone("kitchen").Volume)
	require.Equal(t, 20, h.zone("den").Volume)
	require.ElementsMatch(t, []string{
		"SetVolume living 22",
		"SetVolume kitchen 17",
		"SetVolume den 20",
	}, setVolumeCalls(h.device.Calls()))
}

func TestRemoteVolumeIgnoresOwnWrites(t *testing.T) {
	h := remoteGroup(t, 100)

	require.NoError(t, h.engine.SetVolume("living", 30))
	h.settle()
	require.Equal(t, 25, h.zone("kitchen").Volume)
	h.device.reset()

	// Echo of the write we just made.
	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(25)})
	h.drain()
	require.Equal(t, 1, h.zone("kitchen").VolumeLockDepth)

	h.settle()
	require.Empty(t, h.device.commandCalls())
	require.Equal(t, 30, h.zone("living").Volume)
	require.Equal(t, 28, h.zone("den").Volume)
	require.Equal(t, 0, h.zone("kitchen").VolumeLockDepth)
}

func TestRemoteVolumeRequiresOverride(t *testing.T) {
	h := remoteGroup(t, 100)
	h.engine.remoteVolumeOverride = false

	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(20)})
	h.drain()

	require.Equal(t, 0, h.zone("kitchen").VolumeLockDepth)
	require.Contains(t, h.device.Calls(), "GetVolume kitchen")
}

func TestRemoteVolumeRequiresRemotelyControlledGroup(t *testing.T) {
	h := remoteGroup(t, 100)
	h.zone("living").Config.RemotelyControlled = false

	h.notify(RenderingChanged{ZoneID: "den", Volume: ptr(30)})
	h.drain()

	require.Equal(t, 0, h.zone("den").VolumeLockDepth)
}

func TestRemoteVolumeIgnoredWhileCommandPending(t *testing.T) {
	h := remoteGroup(t, 100)

	require.NoError(t, h.engine.SetVolume("living", 30))
	h.drain()
	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(25)})
	h.drain()

	require.Equal(t, 0, h.zone("kitchen").VolumeLockDepth)
	require.Equal(t, 25, h.zone("kitchen").DeviceVolume)
}

func TestStaleSyncDoesNotUndoRemoteWindow(t *testing.T) {
	h := remoteGroup(t, 100)

	// The fetch reads kitchen at 15; its result is held back.
	require.True(t, h.engine.requestSync("test"))
	stale := <-h.engine.events

	h.device.set("kitchen", func(s *deviceState) { s.volume = 20 })
	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(20)})
	h.drain()

	h.engine.dispatch(stale)
	h.drain()
	require.Equal(t, 20, h.zone("kitchen").DeviceVolume)
	require.Equal(t, 1, h.zone("kitchen").VolumeLockDepth)

	h.clock.Advance(DefaultRemoteDebounce)
	h.drain()

	require.Equal(t, 25, h.zone("living").Volume)
	require.Equal(t, 20, h.zone("kitchen").Volume)
	require.Equal(t, 23, h.zone("den").Volume)
	require.ElementsMatch(t, []string{"SetVolume living 25", "SetVolume den 23"}, setVolumeCalls(h.device.Calls()))
}

func TestSyncDroppedWhileWindowOpen(t *testing.T) {
	h := remoteGroup(t, 100)

	h.notify(RenderingChanged{ZoneID: "kitchen", Volume: ptr(20)})
	h.drain()

	require.False(t, h.engine.requestSync("test"))
}
