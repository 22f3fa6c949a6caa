package zone

import "context"

func (e *Engine) setPower(zoneID string, on bool) {
	z := e.model.Zone(zoneID)
	if z == nil {
		e.logger.Printf("ZONE: power command for unknown zone %s", zoneID)
		return
	}
	if z.Power == on {
		e.logger.Printf("ZONE: %s already %s", z.Name, onOff(on))
		return
	}
	if on {
		e.powerOn(z)
	} else {
		e.powerOff(z)
	}
}

func (e *Engine) powerOn(z *Zone) {
	release := e.beginOperation("power on " + z.Name)
	b := &batch{label: "power on " + z.Name}

	switch priority := e.activePriority(z); {
	case priority != nil:
		e.logger.Printf("ZONE: %s joining priority zone %s", z.Name, priority.Name)
		b.add(z.ID, "JoinGroup", func(ctx context.Context) error {
			return e.device.JoinGroup(ctx, z.ID, priority.ID)
		})
		e.joinAsMember(z, priority)
		volume := z.setVolume(RelativeGain(priority.Volume, priority.ReferenceVolume, z.ReferenceVolume, z.Bounds()))
		z.RemoteVolume = volume
		b.add(z.ID, "SetVolume", func(ctx context.Context) error {
			return e.device.SetVolume(ctx, z.ID, volume)
		})
		if z.Mute {
			z.Mute = false
			b.add(z.ID, "SetMute", func(ctx context.Context) error {
				return e.device.SetMute(ctx, z.ID, false)
			})
		}
		e.pushZone(priority)

	case !z.Config.AutoPlayDisabled:
		b.add(z.ID, "Play", func(ctx context.Context) error {
			return e.device.Play(ctx, z.ID)
		})
		z.Power = true
		z.clearGrouping()
		e.autoGroup(z, b)

	default:
		e.logger.Printf("ZONE: %s has autoplay disabled and no active priority zone", z.Name)
		e.after(e.opts.UICorrection, "revert power "+z.Name, func() {
			e.pushZone(z)
		})
	}

	e.pushZone(z)
	e.pushGlobal()
	b.onDone = e.settleThen(e.opts.PowerSettle, b.label, release)
	e.runBatch(b)
}

// activePriority returns the first powered zone in z's priority list.
func (e *Engine) activePriority(z *Zone) *Zone {
	for _, ref := range z.Config.PriorityList {
		p := e.model.Lookup(ref)
		if p == nil {
			e.logger.Printf("ZONE: %s priority zone %q not found, skipping", z.Name, ref)
			continue
		}
		if p.ID != z.ID && p.Power {
			return p
		}
	}
	return nil
}

// autoGroup pulls every configured target that is not yet playing into z's group.
func (e *Engine) autoGroup(z *Zone, b *batch) {
	for _, ref := range z.Config.AutoGroupTargets {
		target := e.model.Lookup(ref)
		if target == nil {
			e.logger.Printf("ZONE: %s auto-group zone %q not found, skipping", z.Name, ref)
			continue
		}
		if target.ID == z.ID || target.Power {
			continue
		}
		b.add(target.ID, "JoinGroup", func(ctx context.Context) error {
			return e.device.JoinGroup(ctx, target.ID, z.ID)
		})
		e.joinAsMember(target, z)
		volume := target.setVolume(RelativeGain(z.Volume, z.ReferenceVolume, target.ReferenceVolume, target.Bounds()))
		target.RemoteVolume = volume
		b.add(target.ID, "SetVolume", func(ctx context.Context) error {
			return e.device.SetVolume(ctx, target.ID, volume)
		})
		e.logger.Printf("ZONE: %s auto-grouped %s at volume %d", z.Name, target.Name, volume)
		e.pushZone(target)
	}
}

// joinAsMember moves member out of any group it led or followed and
// under coord.
func (e *Engine) joinAsMember(member, coord *Zone) {
	e.detach(member)
	member.Power = true
	member.IsGrouped = true
	member.IsCoordinator = false
	member.CoordinatorID = coord.ID
	member.MemberIDs = nil

	coord.IsGrouped = true
	coord.IsCoordinator = true
	coord.CoordinatorID = ""
	coord.addMember(member.ID)
}

// detach clears z's grouping and fixes up the group it was part of.
func (e *Engine) detach(z *Zone) {
	if z.IsGrouped && !z.IsCoordinator {
		if former := e.model.Zone(z.CoordinatorID); former != nil {
			former.removeMember(z.ID)
			if len(former.MemberIDs) == 0 {
				former.clearGrouping()
			}
			e.pushZone(former)
		}
	}
	if z.IsCoordinator {
		for _, id := range z.MemberIDs {
			if m := e.model.Zone(id); m != nil && m.CoordinatorID == z.ID {
				m.clearGrouping()
			}
		}
	}
	z.clearGrouping()
}

func (e *Engine) powerOff(z *Zone) {
	release := e.beginOperation("power off " + z.Name)
	b := &batch{label: "power off " + z.Name}

	if z.IsCoordinator && z.IsGrouped && z.Config.GroupOverride {
		for _, id := range append([]string(nil), z.MemberIDs...) {
			member := e.model.Zone(id)
			if member == nil {
				continue
			}
			member.Power = false
			member.setVolume(max(member.Volume, member.MinVolume))
			b.add(member.ID, "LeaveGroup", func(ctx context.Context) error {
				return e.device.LeaveGroup(ctx, member.ID)
			})
			member.clearGrouping()
			z.removeMember(member.ID)
			e.pushZone(member)
		}
		z.clearGrouping()
		e.logger.Printf("ZONE: %s released its group", z.Name)
	}

	if z.Capabilities.HomeTheater && z.TVInput && !z.Config.TVOverride {
		e.logger.Printf("ZONE: %s is playing TV input, refusing power off", z.Name)
		e.after(e.opts.UICorrection, "revert power "+z.Name, func() {
			e.pushZone(z)
		})
	} else {
		b.add(z.ID, "LeaveGroup", func(ctx context.Context) error {
			return e.device.LeaveGroup(ctx, z.ID)
		})
		e.detach(z)
		z.Power = false
		e.pushZone(z)
	}

	e.pushGlobal()
	b.onDone = e.settleThen(e.opts.PowerSettle, b.label, release)
	e.runBatch(b)
}

func (e *Engine) setVolume(zoneID string, requested int) {
	z := e.model.Zone(zoneID)
	if z == nil {
		e.logger.Printf("ZONE: volume command for unknown zone %s", zoneID)
		return
	}
	release := e.beginOperation("volume " + z.Name)
	b := &batch{label: "volume " + z.Name}

	cmd := Clamp(requested, z.MinVolume, z.MaxVolume)
	b.add(z.ID, "SetVolume", func(ctx context.Context) error {
		return e.device.SetVolume(ctx, z.ID, cmd)
	})

	if z.IsCoordinator && z.IsGrouped {
		delta := cmd - z.Volume
		for _, id := range z.MemberIDs {
			member := e.model.Zone(id)
			if member == nil {
				continue
			}
			volume := member.setVolume(PropagateDelta(delta, member.Volume, member.Bounds()))
			member.RemoteVolume = volume
			b.add(member.ID, "SetVolume", func(ctx context.Context) error {
				return e.device.SetVolume(ctx, member.ID, volume)
			})
			e.pushZone(member)
		}
	}

	z.setVolume(cmd)
	z.RemoteVolume = cmd
	if cmd != requested {
		e.logger.Printf("ZONE: %s volume %d clamped to %d", z.Name, requested, cmd)
		e.pushZone(z)
	}

	b.onDone = e.settleThen(e.opts.VolumeSettle, b.label, release)
	e.runBatch(b)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
