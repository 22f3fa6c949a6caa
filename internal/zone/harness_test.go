package zone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ==========================================================================
// Fake device
// ==========================================================================

type deviceState struct {
	volume    int
	mute      bool
	transport TransportState
	track     TrackRef
}

type fakeDevice struct {
	mu       sync.Mutex
	calls    []string
	state    map[string]*deviceState
	failures map[string]error
	topology []GroupTopology
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		state:    make(map[string]*deviceState),
		failures: make(map[string]error),
	}
}

func (d *fakeDevice) zone(id string) *deviceState {
	s, ok := d.state[id]
	if !ok {
		s = &deviceState{transport: TransportStopped}
		d.state[id] = s
	}
	return s
}

func (d *fakeDevice) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	for prefix, err := range d.failures {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return err
		}
	}
	return nil
}

func (d *fakeDevice) failOn(prefix string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[prefix] = err
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) commandCalls() []string {
	var out []string
	for _, c := range d.Calls() {
		if len(c) >= 3 && c[:3] == "Get" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (d *fakeDevice) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

func (d *fakeDevice) set(id string, fn func(s *deviceState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.zone(id))
}

func (d *fakeDevice) Play(_ context.Context, zoneID string) error {
	if err := d.record("Play " + zoneID); err != nil {
		return err
	}
	d.set(zoneID, func(s *deviceState) { s.transport = TransportPlaying })
	return nil
}

func (d *fakeDevice) JoinGroup(_ context.Context, zoneID, targetID string) error {
	if err := d.record(fmt.Sprintf("JoinGroup %s %s", zoneID, targetID)); err != nil {
		return err
	}
	d.set(zoneID, func(s *deviceState) {
		s.transport = TransportPlaying
		s.track = TrackRef{URI: "x-rincon:" + targetID, FollowID: targetID}
	})
	return nil
}

func (d *fakeDevice) LeaveGroup(_ context.Context, zoneID string) error {
	if err := d.record("LeaveGroup " + zoneID); err != nil {
		return err
	}
	d.set(zoneID, func(s *deviceState) {
		s.transport = TransportStopped
		s.track = TrackRef{}
	})
	return nil
}

func (d *fakeDevice) SetVolume(_ context.Context, zoneID string, volume int) error {
	if err := d.record(fmt.Sprintf("SetVolume %s %d", zoneID, volume)); err != nil {
		return err
	}
	d.set(zoneID, func(s *deviceState) { s.volume = volume })
	return nil
}

func (d *fakeDevice) SetMute(_ context.Context, zoneID string, mute bool) error {
	if err := d.record(fmt.Sprintf("SetMute %s %t", zoneID, mute)); err != nil {
		return err
	}
	d.set(zoneID, func(s *deviceState) { s.mute = mute })
	return nil
}

func (d *fakeDevice) SetEQ(_ context.Context, zoneID string, eq EQType, enabled bool) error {
	return d.record(fmt.Sprintf("SetEQ %s %s %t", zoneID, eq, enabled))
}

func (d *fakeDevice) GetVolume(_ context.Context, zoneID string) (int, error) {
	if err := d.record("GetVolume " + zoneID); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone(zoneID).volume, nil
}

func (d *fakeDevice) GetMute(_ context.Context, zoneID string) (bool, error) {
	if err := d.record("GetMute " + zoneID); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone(zoneID).mute, nil
}

func (d *fakeDevice) GetTransportState(_ context.Context, zoneID string) (TransportState, error) {
	if err := d.record("GetTransportState " + zoneID); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone(zoneID).transport, nil
}

func (d *fakeDevice) GetCurrentTrackRef(_ context.Context, zoneID string) (TrackRef, error) {
	if err := d.record("GetCurrentTrackRef " + zoneID); err != nil {
		return TrackRef{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone(zoneID).track, nil
}

func (d *fakeDevice) GetGroupTopology(context.Context) ([]GroupTopology, error) {
	if err := d.record("GetGroupTopology"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.topology, nil
}

func (d *fakeDevice) Notifications() <-chan Notification {
	return nil
}

// ==========================================================================
// Fake clock
// ==========================================================================

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) next() *fakeTimer {
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	return due[0]
}

// Advance fires every timer due within d, in time order.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		t := c.next()
		if t == nil || t.at > target {
			break
		}
		c.now = t.at
		t.fired = true
		t.fn()
	}
	c.now = target
}

// ==========================================================================
// Harness
// ==========================================================================

type harness struct {
	t         *testing.T
	engine    *Engine
	device    *fakeDevice
	clock     *fakeClock
	snapshots []Snapshot
	globals   []GlobalSnapshot
}

func newHarness(t *testing.T, zones []Descriptor, opts Options) *harness {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	device := newFakeDevice()
	e := NewEngine(device, zones, opts)
	clock := &fakeClock{}
	e.clock = clock
	e.run = func(f func()) { f() }

	h := &harness{t: t, engine: e, device: device, clock: clock}
	e.OnSnapshot(func(s Snapshot) { h.snapshots = append(h.snapshots, s) })
	e.OnGlobal(func(g GlobalSnapshot) { h.globals = append(h.globals, g) })
	return h
}

// drain dispatches queued events until the queue is empty.
func (h *harness) drain() {
	for i := 0; i < 10000; i++ {
		select {
		case ev := <-h.engine.events:
			h.engine.dispatch(ev)
		default:
			return
		}
	}
	h.t.Fatal("event queue did not drain")
}

// settle drains and fires timers until the engine is idle.
func (h *harness) settle() {
	for i := 0; i < 1000; i++ {
		h.drain()
		t := h.clock.next()
		if t == nil {
			return
		}
		h.clock.Advance(t.at - h.clock.now)
	}
	h.t.Fatal("engine did not settle")
}

func (h *harness) zone(id string) *Zone {
	z := h.engine.model.Zone(id)
	require.NotNil(h.t, z, "zone %s", id)
	return z
}

func (h *harness) notify(n Notification) {
	require.True(h.t, h.engine.post(n))
}

func (h *harness) lastSnapshot(id string) Snapshot {
	for i := len(h.snapshots) - 1; i >= 0; i-- {
		if h.snapshots[i].ZoneID == id {
			return h.snapshots[i]
		}
	}
	h.t.Fatalf("no snapshot for %s", id)
	return Snapshot{}
}

// playing marks a zone as standalone and playing in both device and model.
func (h *harness) playing(id string, volume int) {
	h.device.set(id, func(s *deviceState) {
		s.transport = TransportPlaying
		s.volume = volume
	})
	z := h.zone(id)
	z.TransportState = TransportPlaying
	z.Power = true
	z.setVolume(volume)
	z.DeviceVolume = volume
	z.RemoteVolume = z.Volume
}

// group makes coord lead members in both device and model.
func (h *harness) group(coord string, members ...string) {
	for _, id := range members {
		h.device.set(id, func(s *deviceState) {
			s.transport = TransportPlaying
			s.track = TrackRef{URI: "x-rincon:" + coord, FollowID: coord}
		})
		h.engine.joinAsMember(h.zone(id), h.zone(coord))
		h.zone(id).FollowRef = coord
		h.zone(id).TransportState = TransportPlaying
	}
}

func desc(id string, cfg Config) Descriptor {
	return Descriptor{ID: id, Name: id, MinVolume: 0, MaxVolume: 100, Config: cfg}
}

func ptr[T any](v T) *T {
	return &v
}

var errOffline = errors.New("device offline")
