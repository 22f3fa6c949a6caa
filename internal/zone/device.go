package zone

import "context"

// EQType names a home-theater EQ setting.
type EQType string

const (
	EQNightMode         EQType = "NightMode"
	EQSpeechEnhancement EQType = "DialogLevel"
)

// TrackRef is the driver's translation of a zone's current track.
// FollowID is set when the zone is playing another zone's stream.
type TrackRef struct {
	URI      string `json:"uri"`
	FollowID string `json:"follow_id,omitempty"`
	TVInput  bool   `json:"tv_input"`
}

// GroupTopology is one group as the devices report it.
type GroupTopology struct {
	CoordinatorID string   `json:"coordinator_id"`
	MemberIDs     []string `json:"member_ids"`
}

// DeviceClient is the device-driver collaborator. Calls may block on
// network I/O and must honor ctx.
type DeviceClient interface {
	Play(ctx context.Context, zoneID string) error
	JoinGroup(ctx context.Context, zoneID, targetID string) error
	LeaveGroup(ctx context.Context, zoneID string) error
	SetVolume(ctx context.Context, zoneID string, volume int) error
	SetMute(ctx context.Context, zoneID string, mute bool) error
	SetEQ(ctx context.Context, zoneID string, eq EQType, enabled bool) error

	GetVolume(ctx context.Context, zoneID string) (int, error)
	GetMute(ctx context.Context, zoneID string) (bool, error)
	GetTransportState(ctx context.Context, zoneID string) (TransportState, error)
	GetCurrentTrackRef(ctx context.Context, zoneID string) (TrackRef, error)
	GetGroupTopology(ctx context.Context) ([]GroupTopology, error)

	// Notifications delivers device events. The channel may be nil.
	Notifications() <-chan Notification
}

// Notification is a device-originated event.
type Notification interface {
	notificationZone() string
}

// TransportChanged reports an AVTransport change. Track is nil when the
// event did not carry track information.
type TransportChanged struct {
	ZoneID string
	State  TransportState
	Track  *TrackRef
}

func (n TransportChanged) notificationZone() string { return n.ZoneID }

// RenderingChanged reports a RenderingControl change. Nil fields were not
// part of the event.
type RenderingChanged struct {
	ZoneID            string
	Volume            *int
	Mute              *bool
	NightMode         *bool
	SpeechEnhancement *bool
}

func (n RenderingChanged) notificationZone() string { return n.ZoneID }
