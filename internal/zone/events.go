package zone

import "context"

// Loop event types. Notifications from the device driver arrive as
// TransportChanged and RenderingChanged.
type (
	powerCommand struct {
		zoneID string
		on     bool
	}
	volumeCommand struct {
		zoneID string
		volume int
	}
	eqCommand struct {
		zoneID  string
		eq      EQType
		enabled bool
	}
	controlCommand struct {
		op    controlOp
		value bool
	}
	syncRequest struct {
		reason string
	}
	configReload struct {
		configs map[string]Config
	}
	batchCompleted struct {
		batch *batch
		errs  []error
	}
	syncCompleted struct {
		result *syncResult
	}
	timerFired struct {
		label string
		fire  func()
	}
	queryEvent struct {
		fn   func(m *Model)
		done chan struct{}
	}
)

func (e *Engine) dispatch(ev any) {
	switch ev := ev.(type) {
	case TransportChanged:
		e.onTransportChanged(ev)
	case RenderingChanged:
		e.onRenderingChanged(ev)
	case powerCommand:
		e.setPower(ev.zoneID, ev.on)
	case volumeCommand:
		e.setVolume(ev.zoneID, ev.volume)
	case eqCommand:
		e.setEQ(ev.zoneID, ev.eq, ev.enabled)
	case controlCommand:
		e.applyControl(ev.op, ev.value)
	case syncRequest:
		e.requestSync(ev.reason)
	case configReload:
		e.applyConfigs(ev.configs)
	case batchCompleted:
		for _, err := range ev.errs {
			if err != nil {
				e.logger.Printf("ZONE: %s: device call failed: %v", ev.batch.label, err)
			}
		}
		ev.batch.errs = ev.errs
		if ev.batch.onDone != nil {
			ev.batch.onDone(ev.batch)
		}
	case syncCompleted:
		e.applySync(ev.result)
	case timerFired:
		ev.fire()
	case queryEvent:
		ev.fn(e.model)
		close(ev.done)
	default:
		e.logger.Printf("ZONE: ignoring unknown event %T", ev)
	}
}

func (e *Engine) onTransportChanged(n TransportChanged) {
	z := e.model.Zone(n.ZoneID)
	if z == nil {
		e.logger.Printf("ZONE: transport event for unknown zone %s", n.ZoneID)
		return
	}
	if n.State != "" {
		z.TransportState = n.State
	}
	if n.Track != nil {
		z.CurrentTrackRef = n.Track.URI
		z.FollowRef = n.Track.FollowID
		z.TVInput = z.Capabilities.HomeTheater && n.Track.TVInput
	}

	// Commands in flight own the model until they settle.
	if e.guards.pending > 0 {
		return
	}

	previous := z.CoordinatorID
	ResolveGroups(e.model.All())
	e.pushZone(z)

	if z.IsGrouped && !z.IsCoordinator && z.CoordinatorID != previous {
		if e.followJoin(z) {
			return
		}
	}
	e.requestSync("transport change on " + z.Name)
}

func (e *Engine) onRenderingChanged(n RenderingChanged) {
	z := e.model.Zone(n.ZoneID)
	if z == nil {
		e.logger.Printf("ZONE: rendering event for unknown zone %s", n.ZoneID)
		return
	}
	if n.Mute != nil {
		z.Mute = *n.Mute
	}
	if n.NightMode != nil {
		z.NightMode = *n.NightMode
	}
	if n.SpeechEnhancement != nil {
		z.SpeechEnhancement = *n.SpeechEnhancement
	}
	if n.Volume != nil {
		z.DeviceVolume = *n.Volume
		if e.remoteWindowEligible(z) {
			e.openRemoteWindow(z)
			return
		}
	}
	if e.guards.pending == 0 {
		e.requestSync("rendering change on " + z.Name)
	}
}

// followJoin applies relative gain to a zone that a remote control path
// just joined into a group. It reports whether a command was started.
func (e *Engine) followJoin(z *Zone) bool {
	if !e.remoteAutoGroup {
		return false
	}
	coord := e.model.Zone(z.CoordinatorID)
	if coord == nil {
		return false
	}
	if !z.Config.RemotelyControlled && !coord.Config.RemotelyControlled {
		return false
	}

	release := e.beginOperation("follow join " + z.Name)
	b := &batch{label: "follow join " + z.Name}
	volume := RelativeGain(coord.Volume, coord.ReferenceVolume, z.ReferenceVolume, z.Bounds())
	z.setVolume(volume)
	z.RemoteVolume = z.Volume
	b.add(z.ID, "SetVolume", func(ctx context.Context) error {
		return e.device.SetVolume(ctx, z.ID, volume)
	})
	e.logger.Printf("ZONE: %s joined %s remotely, volume %d", z.Name, coord.Name, z.Volume)
	e.pushZone(z)
	b.onDone = e.settleThen(e.opts.VolumeSettle, b.label, release)
	e.runBatch(b)
	return true
}

func (e *Engine) applyConfigs(configs map[string]Config) {
	for id, cfg := range configs {
		z := e.model.Zone(id)
		if z == nil {
			e.logger.Printf("ZONE: config for unknown zone %s ignored", id)
			continue
		}
		if cfg.DefaultReferenceVolume == 0 {
			cfg.DefaultReferenceVolume = DefaultReferenceVolume
		}
		if cfg.DefaultReferenceVolume != z.Config.DefaultReferenceVolume {
			z.ReferenceVolume = cfg.DefaultReferenceVolume
		}
		z.Config = cfg
	}
	e.logger.Printf("ZONE: applied configuration for %d zones", len(configs))
}
