package zone

import "context"

// remoteWindowEligible reports whether a device volume change on z came
// from outside this process and should move the whole group.
func (e *Engine) remoteWindowEligible(z *Zone) bool {
	if !e.remoteVolumeOverride || e.guards.pending > 0 {
		return false
	}
	coord := e.model.coordinatorOf(z)
	if coord == nil || len(coord.MemberIDs) == 0 {
		return false
	}
	return z.Config.RemotelyControlled || coord.Config.RemotelyControlled
}

// openRemoteWindow locks z's whole group and schedules reconciliation.
func (e *Engine) openRemoteWindow(z *Zone) {
	coord := e.model.coordinatorOf(z)
	ids := make([]string, 0, len(coord.MemberIDs)+1)
	for _, member := range e.model.groupOf(coord) {
		ids = append(ids, member.ID)
	}
	e.lockZones(ids)
	e.logger.Printf("REMOTE: %s volume changed to %d, window open (depth=%d)", z.Name, z.DeviceVolume, z.VolumeLockDepth)
	e.after(e.opts.RemoteDebounce, "remote volume "+z.Name, func() {
		e.closeRemoteWindow(z.ID, ids)
	})
}

// closeRemoteWindow runs when a debounce timer expires. Only the window
// that finds the initiating zone at depth one reconciles.
func (e *Engine) closeRemoteWindow(initiator string, ids []string) {
	z := e.model.Zone(initiator)
	if z == nil || z.VolumeLockDepth > 1 {
		e.releaseRemoteWindow(ids)
		return
	}

	writes := e.reconcileVolumes(ids)
	if len(writes.calls) == 0 {
		e.releaseRemoteWindow(ids)
		return
	}
	writes.onDone = func(*batch) {
		e.releaseRemoteWindow(ids)
	}
	e.runBatch(writes)
}

func (e *Engine) releaseRemoteWindow(ids []string) {
	if e.unlockZones(ids) && e.guards.pending == 0 {
		e.requestSync("remote volume settled")
	}
}

// reconcileVolumes moves the model volumes of the locked group by the
// observed device drift and returns the device writes needed.
func (e *Engine) reconcileVolumes(ids []string) *batch {
	b := &batch{label: "remote volume"}
	zones := make([]*Zone, 0, len(ids))
	for _, id := range ids {
		if z := e.model.Zone(id); z != nil {
			zones = append(zones, z)
		}
	}
	if len(zones) == 0 {
		return b
	}

	drift := make([]int, len(zones))
	for i, z := range zones {
		drift[i] = z.DeviceVolume - z.RemoteVolume
	}
	if uniform(drift) {
		e.logger.Printf("REMOTE: no drift from baseline, ignoring")
		return b
	}

	sum, changed := 0, 0
	for _, z := range zones {
		d := z.DeviceVolume - z.Volume
		sum += d
		if d != 0 {
			changed++
		}
	}
	shift := floorDiv(sum, max(1, changed))

	next := make([]int, len(zones))
	relative := make([]int, len(zones))
	for i, z := range zones {
		next[i] = Clamp(z.Volume+shift, z.MinVolume, z.MaxVolume)
		relative[i] = next[i] - z.RemoteVolume
	}
	if !uniform(relative) {
		smallest := relative[0]
		for _, d := range relative[1:] {
			if absInt(d) < absInt(smallest) {
				smallest = d
			}
		}
		for i, z := range zones {
			next[i] = Clamp(z.RemoteVolume+smallest, z.MinVolume, z.MaxVolume)
		}
		e.logger.Printf("REMOTE: bounds clamped the shift, falling back to delta %d", smallest)
	}

	for i, z := range zones {
		volume := next[i]
		if volume != z.DeviceVolume {
			b.add(z.ID, "SetVolume", func(ctx context.Context) error {
				return e.device.SetVolume(ctx, z.ID, volume)
			})
		}
		z.setVolume(volume)
		e.pushZone(z)
	}
	e.logger.Printf("REMOTE: shifted %d zones by %d", len(zones), shift)
	return b
}

func uniform(values []int) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
