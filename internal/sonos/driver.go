package sonos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/strefethen/sonos-multiroom-go/internal/sonos/events"
	"github.com/strefethen/sonos-multiroom-go/internal/sonos/soap"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// ErrUnknownZone is returned for zone IDs with no registered address.
var ErrUnknownZone = errors.New("no address registered for zone")

// DefaultTopologyTTL bounds how long a fetched group topology is reused.
const DefaultTopologyTTL = 5 * time.Second

// Driver implements zone.DeviceClient over the Sonos SOAP API. Zone IDs
// are player UUIDs (RINCON_...). It also implements events.Sink and turns
// GENA events into zone notifications.
type Driver struct {
	client   *soap.Client
	logger   *log.Logger
	topology *ZoneGroupCache

	mu        sync.RWMutex
	addresses map[string]string // zone UUID -> host

	notifications chan zone.Notification
}

var (
	_ zone.DeviceClient = (*Driver)(nil)
	_ events.Sink       = (*Driver)(nil)
)

// NewDriver creates a driver. A nil logger logs to log.Default().
func NewDriver(client *soap.Client, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		client:        client,
		logger:        logger,
		topology:      NewZoneGroupCache(DefaultTopologyTTL),
		addresses:     make(map[string]string),
		notifications: make(chan zone.Notification, 256),
	}
}

// Register records the host a zone player is reachable at.
func (d *Driver) Register(zoneID, host string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses[zoneID] = host
}

// Address resolves a zone ID to its host.
func (d *Driver) Address(zoneID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	host, ok := d.addresses[zoneID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}
	return host, nil
}

func (d *Driver) registered(zoneID string) bool {
	_, err := d.Address(zoneID)
	return err == nil
}

func (d *Driver) hosts() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.addresses))
	for id := range d.addresses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hosts := make([]string, 0, len(ids))
	for _, id := range ids {
		hosts = append(hosts, d.addresses[id])
	}
	return hosts
}

// Commands

func (d *Driver) Play(ctx context.Context, zoneID string) error {
	host, err := d.Address(zoneID)
	if err != nil {
		return err
	}
	return d.client.Play(ctx, host)
}

func (d *Driver) JoinGroup(ctx context.Context, zoneID, targetID string) error {
	host, err := d.Address(zoneID)
	if err != nil {
		return err
	}
	defer d.topology.Invalidate()
	return d.client.JoinGroup(ctx, host, targetID)
}

func (d *Driver) LeaveGroup(ctx context.Context, zoneID string) error {
	host, err := d.Address(zoneID)
	if err != nil {
		return err
	}
	defer d.topology.Invalidate()
	return d.client.BecomeCoordinatorOfStandaloneGroup(ctx, host)
}

func (d *Driver) SetVolume(ctx context.Context, zoneID string, volume int) error {
	host, err := d.Address(zoneID)
	if err != nil {
		return err
	}
	return d.client.SetVolume(ctx, host, volume)
}

func (d *Driver) SetMute(ctx context.Context, zoneID string, mute bool) error {
	host, err := d.Address(zoneID)
	if err != nil {
		return err
	}
	return d.client.SetMute(ctx, host, mute)
}

func (d *Driver) SetEQ(ctx context.Context, zoneID string, eq zone.EQType, enabled bool) error {
	host, err := d.Address(zoneID)
	if err != nil {
		return err
	}
	return d.client.SetEQ(ctx, host, string(eq), enabled)
}

// Reads retry once on timeouts and connection failures.

func (d *Driver) GetVolume(ctx context.Context, zoneID string) (int, error) {
	info, err := read(ctx, d, zoneID, d.client.GetVolume)
	return info.CurrentVolume, err
}

func (d *Driver) GetMute(ctx context.Context, zoneID string) (bool, error) {
	info, err := read(ctx, d, zoneID, d.client.GetMute)
	return info.CurrentMute, err
}

func (d *Driver) GetTransportState(ctx context.Context, zoneID string) (zone.TransportState, error) {
	info, err := read(ctx, d, zoneID, d.client.GetTransportInfo)
	if err != nil {
		return "", err
	}
	return zone.ParseTransportState(info.CurrentTransportState), nil
}

func (d *Driver) GetCurrentTrackRef(ctx context.Context, zoneID string) (zone.TrackRef, error) {
	info, err := read(ctx, d, zoneID, d.client.GetMediaInfo)
	if err != nil {
		return zone.TrackRef{}, err
	}
	return d.trackRef(zoneID, info.CurrentURI), nil
}

// GetGroupTopology asks registered players in turn until one answers.
// Results are cached until a topology event or a grouping command.
func (d *Driver) GetGroupTopology(ctx context.Context) ([]zone.GroupTopology, error) {
	state, err := d.topology.GetOrFetch(func() (*soap.ZoneGroupState, error) {
		var errs []error
		for _, host := range d.hosts() {
			state, err := d.client.GetZoneGroupState(ctx, host)
			if err == nil {
				return &state, nil
			}
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		if len(errs) == 0 {
			return nil, errors.New("no zone players registered")
		}
		return nil, errors.Join(errs...)
	})
	if err != nil {
		return nil, err
	}
	return d.groupsOf(state), nil
}

func (d *Driver) groupsOf(state *soap.ZoneGroupState) []zone.GroupTopology {
	groups := make([]zone.GroupTopology, 0, len(state.Groups))
	for _, g := range state.Groups {
		if !d.registered(g.Coordinator) {
			continue
		}
		var members []string
		for _, id := range g.Players() {
			if d.registered(id) {
				members = append(members, id)
			}
		}
		groups = append(groups, zone.GroupTopology{CoordinatorID: g.Coordinator, MemberIDs: members})
	}
	return groups
}

// Notifications returns the zone event feed fed by TransportEvent and
// RenderingEvent.
func (d *Driver) Notifications() <-chan zone.Notification {
	return d.notifications
}

// trackRef classifies an AVTransport URI. A player following itself is
// not following anyone.
func (d *Driver) trackRef(zoneID, uri string) zone.TrackRef {
	ref := zone.TrackRef{URI: uri, TVInput: soap.IsTVInput(uri)}
	if followed := soap.FollowedUUID(uri); followed != "" && followed != zoneID {
		ref.FollowID = followed
	}
	return ref
}

// TransportEvent converts an AVTransport event for a registered zone.
func (d *Driver) TransportEvent(deviceUDN string, evt events.AVTransportEvent) {
	if !d.registered(deviceUDN) {
		return
	}
	n := zone.TransportChanged{ZoneID: deviceUDN}
	if evt.TransportState != "" {
		n.State = zone.ParseTransportState(evt.TransportState)
	}
	uri := evt.AVTransportURI
	if uri == "" {
		uri = evt.CurrentTrackURI
	}
	if uri != "" {
		ref := d.trackRef(deviceUDN, uri)
		n.Track = &ref
	}
	if n.State == "" && n.Track == nil {
		return
	}
	d.emit(n)
}

// RenderingEvent converts a RenderingControl event for a registered zone.
func (d *Driver) RenderingEvent(deviceUDN string, evt events.RenderingControlEvent) {
	if !d.registered(deviceUDN) {
		return
	}
	d.emit(zone.RenderingChanged{
		ZoneID:            deviceUDN,
		Volume:            evt.Volume,
		Mute:              evt.Muted,
		NightMode:         evt.NightMode,
		SpeechEnhancement: evt.DialogLevel,
	})
}

// TopologyEvent drops the cached topology so the next sync refetches it.
func (d *Driver) TopologyEvent(string, events.ZoneGroupTopologyEvent) {
	d.topology.Invalidate()
}

func (d *Driver) emit(n zone.Notification) {
	select {
	case d.notifications <- n:
	default:
		d.logger.Printf("SONOS: notification feed full, dropping %T", n)
	}
}

func read[T any](ctx context.Context, d *Driver, zoneID string, call func(context.Context, string) (T, error)) (T, error) {
	var zero T
	host, err := d.Address(zoneID)
	if err != nil {
		return zero, err
	}
	value, err := call(ctx, host)
	if err != nil && soap.IsTransient(err) && ctx.Err() == nil {
		d.logger.Printf("SONOS: retrying read on %s: %v", zoneID, err)
		value, err = call(ctx, host)
	}
	return value, err
}
