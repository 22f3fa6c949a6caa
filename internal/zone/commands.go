package zone

import (
	"context"
	"fmt"
)

// SetPower requests a zone power change. Corrections reach listeners
// asynchronously.
func (e *Engine) SetPower(ref string, on bool) error {
	id, err := e.Resolve(ref)
	if err != nil {
		return err
	}
	if !e.post(powerCommand{zoneID: id, on: on}) {
		return ErrEngineStopped
	}
	e.record("power", id, on)
	return nil
}

// SetVolume requests a zone volume change. Out-of-range values are clamped.
func (e *Engine) SetVolume(ref string, volume int) error {
	id, err := e.Resolve(ref)
	if err != nil {
		return err
	}
	if !e.post(volumeCommand{zoneID: id, volume: volume}) {
		return ErrEngineStopped
	}
	e.record("volume", id, volume)
	return nil
}

// SetEQ toggles a home-theater EQ setting.
func (e *Engine) SetEQ(ctx context.Context, ref string, eq EQType, enabled bool) error {
	id, err := e.Resolve(ref)
	if err != nil {
		return err
	}
	var allowed bool
	if err := e.ask(ctx, func(m *Model) {
		allowed = eqAllowed(m.Zone(id), eq)
	}); err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s on %s", ErrUnsupported, eq, ref)
	}
	if !e.post(eqCommand{zoneID: id, eq: eq, enabled: enabled}) {
		return ErrEngineStopped
	}
	e.record(string(eq), id, enabled)
	return nil
}

// PowerOffAll ungroups and stops every zone.
func (e *Engine) PowerOffAll() error {
	return e.control(controlPower, false)
}

// SetGlobalPower handles the aggregate power toggle. Turning it on is
// rejected by reverting the toggle.
func (e *Engine) SetGlobalPower(on bool) error {
	return e.control(controlPower, on)
}

// SetMuteAll mutes or unmutes every zone.
func (e *Engine) SetMuteAll(mute bool) error {
	return e.control(controlMuteAll, mute)
}

// SetRemoteVolumeOverride enables group-wide propagation of volume
// changes made outside this process.
func (e *Engine) SetRemoteVolumeOverride(enabled bool) error {
	return e.control(controlRemoteVolumeOverride, enabled)
}

// SetRemoteAutoGroup enables relative gain for zones grouped from
// outside this process.
func (e *Engine) SetRemoteAutoGroup(enabled bool) error {
	return e.control(controlRemoteAutoGroup, enabled)
}

func (e *Engine) control(op controlOp, value bool) error {
	if !e.post(controlCommand{op: op, value: value}) {
		return ErrEngineStopped
	}
	e.record(op.String(), "", value)
	return nil
}

// RequestSync asks for a GlobalSync. It is dropped if one cannot run now.
func (e *Engine) RequestSync(reason string) error {
	if !e.post(syncRequest{reason: reason}) {
		return ErrEngineStopped
	}
	return nil
}

// ApplyConfigs replaces per-zone configuration, keyed by zone id.
func (e *Engine) ApplyConfigs(configs map[string]Config) error {
	if !e.post(configReload{configs: configs}) {
		return ErrEngineStopped
	}
	return nil
}

// Zones returns a copy of every zone.
func (e *Engine) Zones(ctx context.Context) ([]Zone, error) {
	var out []Zone
	err := e.ask(ctx, func(m *Model) {
		for _, z := range m.All() {
			out = append(out, z.clone())
		}
	})
	return out, err
}

// Zone returns a copy of one zone by id or name.
func (e *Engine) Zone(ctx context.Context, ref string) (Zone, error) {
	id, err := e.Resolve(ref)
	if err != nil {
		return Zone{}, err
	}
	var out Zone
	err = e.ask(ctx, func(m *Model) {
		out = m.Zone(id).clone()
	})
	return out, err
}

// Global returns the aggregate indicators.
func (e *Engine) Global(ctx context.Context) (GlobalSnapshot, error) {
	var out GlobalSnapshot
	err := e.ask(ctx, func(*Model) {
		out = e.globalSnapshot()
	})
	return out, err
}

// Pending returns the pending-operation count.
func (e *Engine) Pending(ctx context.Context) (int, error) {
	var out int
	err := e.ask(ctx, func(*Model) {
		out = e.guards.pending
	})
	return out, err
}
