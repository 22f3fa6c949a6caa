package zone

import "context"

type controlOp int

const (
	controlPower controlOp = iota
	controlMuteAll
	controlRemoteVolumeOverride
	controlRemoteAutoGroup
)

func (op controlOp) String() string {
	switch op {
	case controlPower:
		return "power"
	case controlMuteAll:
		return "mute-all"
	case controlRemoteVolumeOverride:
		return "remote-volume-override"
	case controlRemoteAutoGroup:
		return "remote-auto-group"
	default:
		return "unknown"
	}
}

func (e *Engine) applyControl(op controlOp, value bool) {
	switch op {
	case controlPower:
		if value {
			// Everything-on has no meaning; bounce the toggle back.
			e.after(e.opts.UICorrection, "revert global power", e.pushGlobal)
			return
		}
		e.powerOffAll()
	case controlMuteAll:
		e.muteAll(value)
	case controlRemoteVolumeOverride:
		e.remoteVolumeOverride = value
		if value {
			for _, z := range e.model.All() {
				z.RemoteVolume = z.Volume
			}
		}
		e.logger.Printf("ZONE: remote volume override %s", onOff(value))
		e.pushGlobal()
	case controlRemoteAutoGroup:
		e.remoteAutoGroup = value
		e.logger.Printf("ZONE: remote auto group %s", onOff(value))
		e.pushGlobal()
	}
}

func (e *Engine) powerOffAll() {
	release := e.beginOperation("power off all")
	b := &batch{label: "power off all"}
	for _, z := range e.model.All() {
		b.add(z.ID, "LeaveGroup", func(ctx context.Context) error {
			return e.device.LeaveGroup(ctx, z.ID)
		})
		z.clearGrouping()
		z.Power = false
		z.TransportState = TransportStopped
		e.pushZone(z)
	}
	e.pushGlobal()
	b.onDone = e.settleThen(e.opts.PowerSettle, b.label, release)
	e.runBatch(b)
}

func (e *Engine) muteAll(mute bool) {
	release := e.beginOperation("mute all")
	b := &batch{label: "mute all"}
	for _, z := range e.model.All() {
		b.add(z.ID, "SetMute", func(ctx context.Context) error {
			return e.device.SetMute(ctx, z.ID, mute)
		})
		z.Mute = mute
		e.pushZone(z)
	}
	e.pushGlobal()
	b.onDone = e.settleThen(e.opts.VolumeSettle, b.label, release)
	e.runBatch(b)
}

func (e *Engine) setEQ(zoneID string, eq EQType, enabled bool) {
	z := e.model.Zone(zoneID)
	if z == nil {
		e.logger.Printf("ZONE: EQ command for unknown zone %s", zoneID)
		return
	}
	if !eqAllowed(z, eq) {
		e.logger.Printf("ZONE: %s does not allow %s", z.Name, eq)
		return
	}
	release := e.beginOperation(string(eq) + " " + z.Name)
	b := &batch{label: string(eq) + " " + z.Name}
	b.add(z.ID, "SetEQ", func(ctx context.Context) error {
		return e.device.SetEQ(ctx, z.ID, eq, enabled)
	})
	switch eq {
	case EQNightMode:
		z.NightMode = enabled
	case EQSpeechEnhancement:
		z.SpeechEnhancement = enabled
	}
	b.onDone = e.settleThen(e.opts.VolumeSettle, b.label, release)
	e.runBatch(b)
}

func eqAllowed(z *Zone, eq EQType) bool {
	if !z.Capabilities.HomeTheater {
		return false
	}
	switch eq {
	case EQNightMode:
		return z.Config.NightModeEnabled
	case EQSpeechEnhancement:
		return z.Config.SpeechEnhancementEnabled
	default:
		return false
	}
}
