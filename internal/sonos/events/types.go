package events

import (
	"time"
)

// UPnP GENA service paths for Sonos devices
const (
	AVTransportEventPath       = "/MediaRenderer/AVTransport/Event"
	RenderingControlEventPath  = "/MediaRenderer/RenderingControl/Event"
	ZoneGroupTopologyEventPath = "/ZoneGroupTopology/Event"
)

// ServiceType represents the type of UPnP service
type ServiceType string

const (
	ServiceAVTransport       ServiceType = "AVTransport"
	ServiceRenderingControl  ServiceType = "RenderingControl"
	ServiceZoneGroupTopology ServiceType = "ZoneGroupTopology"
)

// EventPaths returns the subscription paths for each service type
func EventPaths() map[ServiceType]string {
	return map[ServiceType]string{
		ServiceAVTransport:       AVTransportEventPath,
		ServiceRenderingControl:  RenderingControlEventPath,
		ServiceZoneGroupTopology: ZoneGroupTopologyEventPath,
	}
}

// Subscription represents an active UPnP event subscription
type Subscription struct {
	SID          string      // Subscription ID returned by device
	DeviceIP     string      // Address of the subscribed device
	DeviceUDN    string      // UDN of the subscribed device
	ServiceType  ServiceType // Type of service subscribed to
	CallbackURL  string      // Our callback URL for NOTIFY events
	Timeout      int         // Subscription timeout in seconds
	SubscribedAt time.Time   // When the subscription was created
	RenewAt      time.Time   // When the subscription should be renewed
	SEQ          int         // Last received sequence number
}

// IsExpiringSoon reports whether the renewal deadline has passed at now.
func (s *Subscription) IsExpiringSoon(now time.Time) bool {
	return now.After(s.RenewAt)
}

// DeviceSubscriptionState tracks per-device subscription progress and
// failure backoff.
type DeviceSubscriptionState struct {
	DeviceIP      string
	DeviceUDN     string
	Services      map[ServiceType]string // service -> SID
	SubscribedAt  time.Time
	LastAttemptAt time.Time
	FailureCount  int
}

// IsFullySubscribed reports whether every service in want has a SID.
func (s *DeviceSubscriptionState) IsFullySubscribed(want []ServiceType) bool {
	for _, svc := range want {
		if _, ok := s.Services[svc]; !ok {
			return false
		}
	}
	return true
}

// NotifyEvent represents a parsed NOTIFY event from a Sonos device
type NotifyEvent struct {
	SID         string
	SEQ         int
	ServiceType ServiceType
	DeviceIP    string
	Transport   *AVTransportEvent
	Rendering   *RenderingControlEvent
	Topology    *ZoneGroupTopologyEvent
	RawBody     []byte
}

// AVTransportEvent represents parsed AVTransport event data. Empty
// strings were not part of the event.
type AVTransportEvent struct {
	TransportState  string
	CurrentTrackURI string
	AVTransportURI  string
}

// RenderingControlEvent represents parsed RenderingControl event data.
// Nil fields were not part of the event.
type RenderingControlEvent struct {
	Volume      *int
	Muted       *bool
	NightMode   *bool
	DialogLevel *bool
}

// ZoneGroupTopologyEvent represents parsed ZoneGroupTopology event data
type ZoneGroupTopologyEvent struct {
	ZoneGroupState string // Raw XML zone group state
}

// Sink receives events for subscribed devices, keyed by device UDN.
type Sink interface {
	TransportEvent(deviceUDN string, evt AVTransportEvent)
	RenderingEvent(deviceUDN string, evt RenderingControlEvent)
	TopologyEvent(deviceUDN string, evt ZoneGroupTopologyEvent)
}

// ManagerConfig holds configuration for the event manager
type ManagerConfig struct {
	// Enabled controls whether UPnP events are enabled
	Enabled bool

	// CallbackHost overrides the discovered local address in callback URLs.
	CallbackHost string

	// CallbackPort is the port for the NOTIFY callback server
	// If 0, uses the main server port
	CallbackPort int

	// SubscriptionTimeout is the requested subscription duration in seconds
	// Sonos typically accepts 1-3600 seconds
	SubscriptionTimeout int

	// RenewalBuffer is how many seconds before expiry to renew subscriptions
	RenewalBuffer int

	// Services lists which services to subscribe to
	// Default is all three: AVTransport, RenderingControl, ZoneGroupTopology
	Services []ServiceType
}

// DefaultManagerConfig returns the default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Enabled:             true,
		CallbackPort:        0, // Use main server port
		SubscriptionTimeout: 3600,
		RenewalBuffer:       60,
		Services: []ServiceType{
			ServiceAVTransport,
			ServiceRenderingControl,
			ServiceZoneGroupTopology,
		},
	}
}

// ManagerStats provides statistics about the event manager
type ManagerStats struct {
	Enabled              bool      `json:"enabled"`
	ActiveSubscriptions  int       `json:"active_subscriptions"`
	TotalDevices         int       `json:"total_devices"`
	EventsReceived       int64     `json:"events_received"`
	EventsProcessed      int64     `json:"events_processed"`
	SubscriptionFailures int64     `json:"subscription_failures"`
	RenewalFailures      int64     `json:"renewal_failures"`
	LastEventAt          time.Time `json:"last_event_at"`
}
