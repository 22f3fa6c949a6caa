package soap

// TransportInfo mirrors Sonos GetTransportInfo response.
type TransportInfo struct {
	CurrentTransportState  string
	CurrentTransportStatus string
	CurrentSpeed           string
}

// MediaInfo mirrors Sonos GetMediaInfo response. CurrentURI carries the
// x-rincon: or x-sonos-htastream: source when the player follows another
// player or plays its TV input.
type MediaInfo struct {
	NrTracks           int
	MediaDuration      string
	CurrentURI         string
	CurrentURIMetaData string
}

// VolumeInfo mirrors Sonos GetVolume response.
type VolumeInfo struct {
	CurrentVolume int
}

// MuteInfo mirrors Sonos GetMute response.
type MuteInfo struct {
	CurrentMute bool
}

// ZoneGroupState mirrors GetZoneGroupState result (minimal subset needed).
type ZoneGroupState struct {
	Groups []ZoneGroup
}

// ZoneGroup represents a Sonos group.
type ZoneGroup struct {
	ID          string
	Coordinator string
	Members     []ZoneMember
}

// ZoneMember represents a member device in a group.
type ZoneMember struct {
	UUID          string
	ZoneName      string
	Location      string
	IsCoordinator bool
	IsVisible     bool
	IsSatellite   bool
	IsSubwoofer   bool
	ChannelMapSet string
}

// Players returns the visible, non-satellite member UUIDs of the group,
// coordinator first.
func (g ZoneGroup) Players() []string {
	ids := make([]string, 0, len(g.Members))
	if g.Coordinator != "" {
		ids = append(ids, g.Coordinator)
	}
	for _, m := range g.Members {
		if m.UUID == g.Coordinator || !m.IsVisible || m.IsSatellite || m.IsSubwoofer {
			continue
		}
		ids = append(ids, m.UUID)
	}
	return ids
}
