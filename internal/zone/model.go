package zone

import "strings"

// TransportState mirrors the AVTransport states reported by a zone.
type TransportState string

const (
	TransportStopped       TransportState = "STOPPED"
	TransportPlaying       TransportState = "PLAYING"
	TransportPaused        TransportState = "PAUSED_PLAYBACK"
	TransportTransitioning TransportState = "TRANSITIONING"
)

// ParseTransportState maps a raw device value onto a TransportState.
// Unknown values are treated as stopped.
func ParseTransportState(raw string) TransportState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PLAYING":
		return TransportPlaying
	case "PAUSED_PLAYBACK", "PAUSED":
		return TransportPaused
	case "TRANSITIONING":
		return TransportTransitioning
	default:
		return TransportStopped
	}
}

// PowerState is the command-side view of a zone's power and grouping role.
type PowerState string

const (
	StateOff         PowerState = "OFF"
	StateStandalone  PowerState = "ON_STANDALONE"
	StateMember      PowerState = "ON_MEMBER"
	StateCoordinator PowerState = "ON_COORDINATOR"
)

const defaultZoneVolume = 10

// Defaults applied when a descriptor leaves them unset.
const (
	DefaultReferenceVolume = 16
	DefaultMaxVolume       = 100
)

// Capabilities are fixed at zone creation from the device description.
type Capabilities struct {
	HomeTheater bool `json:"home_theater"`
	AudioIn     bool `json:"audio_in"`
}

// Config is the per-zone behavior configuration. Zone references in
// PriorityList and AutoGroupTargets may be ids or names.
type Config struct {
	PriorityList             []string `json:"priority_list"`
	AutoGroupTargets         []string `json:"auto_group_targets"`
	AutoPlayDisabled         bool     `json:"auto_play_disabled"`
	GroupOverride            bool     `json:"group_override"`
	TVOverride               bool     `json:"tv_override"`
	RemotelyControlled       bool     `json:"remotely_controlled"`
	DefaultReferenceVolume   int      `json:"default_reference_volume"`
	VolumeControlled         bool     `json:"volume_controlled"`
	NightModeEnabled         bool     `json:"night_mode_enabled"`
	SpeechEnhancementEnabled bool     `json:"speech_enhancement_enabled"`
}

// Descriptor is what discovery hands the engine for each zone.
type Descriptor struct {
	ID           string
	Name         string
	MinVolume    int
	MaxVolume    int
	Capabilities Capabilities
	Config       Config
}

// Zone is the authoritative record for one playback zone. The engine's
// event loop is its only writer.
type Zone struct {
	ID           string       `json:"zone_id"`
	Name         string       `json:"name"`
	MinVolume    int          `json:"min_volume"`
	MaxVolume    int          `json:"max_volume"`
	Capabilities Capabilities `json:"capabilities"`
	Config       Config       `json:"config"`

	Power           bool     `json:"power"`
	Volume          int      `json:"volume"`
	ReferenceVolume int      `json:"reference_volume"`
	RemoteVolume    int      `json:"remote_volume"`
	IsGrouped       bool     `json:"is_grouped"`
	IsCoordinator   bool     `json:"is_coordinator"`
	CoordinatorID   string   `json:"group_coordinator_id,omitempty"`
	MemberIDs       []string `json:"group_member_ids"`
	VolumeLockDepth int      `json:"volume_lock_depth"`

	// Device-reported state.
	Mute              bool           `json:"mute"`
	DeviceVolume      int            `json:"device_volume"`
	CurrentTrackRef   string         `json:"current_track_ref"`
	FollowRef         string         `json:"follow_ref,omitempty"`
	TVInput           bool           `json:"tv_input"`
	TransportState    TransportState `json:"transport_state"`
	NightMode         bool           `json:"night_mode"`
	SpeechEnhancement bool           `json:"speech_enhancement"`
}

func newZone(desc Descriptor) *Zone {
	maxVolume := desc.MaxVolume
	if maxVolume <= 0 {
		maxVolume = DefaultMaxVolume
	}
	minVolume := desc.MinVolume
	if minVolume < 0 || minVolume > maxVolume {
		minVolume = 0
	}
	cfg := desc.Config
	if cfg.DefaultReferenceVolume == 0 {
		cfg.DefaultReferenceVolume = DefaultReferenceVolume
	}

	z := &Zone{
		ID:              desc.ID,
		Name:            desc.Name,
		MinVolume:       minVolume,
		MaxVolume:       maxVolume,
		Capabilities:    desc.Capabilities,
		Config:          cfg,
		ReferenceVolume: cfg.DefaultReferenceVolume,
		TransportState:  TransportStopped,
	}
	z.setVolume(defaultZoneVolume)
	z.RemoteVolume = z.Volume
	z.DeviceVolume = z.Volume
	return z
}

// Bounds returns the zone's volume limits.
func (z *Zone) Bounds() Bounds {
	return Bounds{Min: z.MinVolume, Max: z.MaxVolume}
}

// State reports the zone's position in the power/grouping state machine.
func (z *Zone) State() PowerState {
	switch {
	case !z.Power:
		return StateOff
	case z.IsCoordinator:
		return StateCoordinator
	case z.IsGrouped:
		return StateMember
	default:
		return StateStandalone
	}
}

// setVolume stores v clamped to the zone bounds and returns the stored value.
func (z *Zone) setVolume(v int) int {
	z.Volume = Clamp(v, z.MinVolume, z.MaxVolume)
	return z.Volume
}

func (z *Zone) hasMember(id string) bool {
	for _, m := range z.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

func (z *Zone) addMember(id string) {
	if id == z.ID || z.hasMember(id) {
		return
	}
	z.MemberIDs = append(z.MemberIDs, id)
}

func (z *Zone) removeMember(id string) {
	kept := z.MemberIDs[:0]
	for _, m := range z.MemberIDs {
		if m != id {
			kept = append(kept, m)
		}
	}
	z.MemberIDs = kept
}

func (z *Zone) clearGrouping() {
	z.IsGrouped = false
	z.IsCoordinator = false
	z.CoordinatorID = ""
	z.MemberIDs = nil
}

func (z *Zone) clone() Zone {
	c := *z
	c.MemberIDs = append([]string(nil), z.MemberIDs...)
	c.Config.PriorityList = append([]string(nil), z.Config.PriorityList...)
	c.Config.AutoGroupTargets = append([]string(nil), z.Config.AutoGroupTargets...)
	return c
}

// Model holds every zone in discovery order.
type Model struct {
	zones map[string]*Zone
	order []string
}

// NewModel builds the zone set. Duplicate ids keep the first descriptor.
func NewModel(descs []Descriptor) *Model {
	m := &Model{zones: make(map[string]*Zone, len(descs))}
	for _, desc := range descs {
		if desc.ID == "" {
			continue
		}
		if _, exists := m.zones[desc.ID]; exists {
			continue
		}
		m.zones[desc.ID] = newZone(desc)
		m.order = append(m.order, desc.ID)
	}
	return m
}

// Zone returns the zone with the given id, or nil.
func (m *Model) Zone(id string) *Zone {
	return m.zones[id]
}

// Lookup resolves a zone by id first, then by case-insensitive name.
func (m *Model) Lookup(ref string) *Zone {
	if z, ok := m.zones[ref]; ok {
		return z
	}
	for _, id := range m.order {
		if strings.EqualFold(m.zones[id].Name, ref) {
			return m.zones[id]
		}
	}
	return nil
}

// All returns the zones in discovery order.
func (m *Model) All() []*Zone {
	out := make([]*Zone, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.zones[id])
	}
	return out
}

// coordinatorOf returns the zone that leads z's group, or nil when z is standalone.
func (m *Model) coordinatorOf(z *Zone) *Zone {
	if !z.IsGrouped {
		return nil
	}
	if z.IsCoordinator {
		return z
	}
	return m.zones[z.CoordinatorID]
}

// groupOf returns the coordinator followed by its members.
func (m *Model) groupOf(coord *Zone) []*Zone {
	group := []*Zone{coord}
	for _, id := range coord.MemberIDs {
		if member := m.zones[id]; member != nil {
			group = append(group, member)
		}
	}
	return group
}

// Snapshot is what the control surface receives for one zone.
type Snapshot struct {
	ZoneID      string `json:"zone_id"`
	Name        string `json:"name"`
	Power       bool   `json:"power"`
	Volume      int    `json:"volume"`
	Coordinator bool   `json:"coordinator"`
	Mute        bool   `json:"mute"`
}

// GlobalSnapshot carries the aggregate indicators.
type GlobalSnapshot struct {
	AnyPowered           bool `json:"any_powered"`
	AnyMuted             bool `json:"any_muted"`
	RemoteVolumeOverride bool `json:"remote_volume_override"`
	RemoteAutoGroup      bool `json:"remote_auto_group"`
}

// SnapshotOf projects a zone onto what control surfaces display.
func SnapshotOf(z *Zone) Snapshot {
	return Snapshot{
		ZoneID:      z.ID,
		Name:        z.Name,
		Power:       z.Power,
		Volume:      z.Volume,
		Coordinator: z.IsCoordinator && z.IsGrouped,
		Mute:        z.Mute,
	}
}
