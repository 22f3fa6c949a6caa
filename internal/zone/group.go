package zone

// ResolveGroups derives grouping roles and power from each zone's FollowRef
// and transport state. A zone follows X only while X is not stopped.
// A transitioning source leaves the derived power untouched.
func ResolveGroups(zones []*Zone) {
	byID := make(map[string]*Zone, len(zones))
	for _, z := range zones {
		byID[z.ID] = z
	}

	target := func(z *Zone) *Zone {
		if z.FollowRef == "" || z.FollowRef == z.ID {
			return nil
		}
		t := byID[z.FollowRef]
		if t == nil || t.TransportState == TransportStopped {
			return nil
		}
		return t
	}

	followers := make(map[string][]string)
	for _, z := range zones {
		if t := target(z); t != nil {
			followers[t.ID] = append(followers[t.ID], z.ID)
		}
	}

	for _, z := range zones {
		if t := target(z); t != nil {
			z.IsGrouped = true
			z.IsCoordinator = false
			z.CoordinatorID = t.ID
			z.MemberIDs = nil
			derivePower(z, t.TransportState)
			continue
		}

		z.CoordinatorID = ""
		if members := followers[z.ID]; len(members) > 0 {
			z.IsGrouped = true
			z.IsCoordinator = true
			z.MemberIDs = members
		} else {
			z.IsGrouped = false
			z.IsCoordinator = false
			z.MemberIDs = nil
		}
		derivePower(z, z.TransportState)
	}
}

func derivePower(z *Zone, source TransportState) {
	if source == TransportTransitioning {
		return
	}
	z.Power = source == TransportPlaying
}

// followFromTopology maps every member in the reported topology to its
// coordinator.
func followFromTopology(groups []GroupTopology) map[string]string {
	out := make(map[string]string)
	for _, g := range groups {
		for _, member := range g.MemberIDs {
			if member != g.CoordinatorID {
				out[member] = g.CoordinatorID
			}
		}
	}
	return out
}
