package audit

// EventType represents the type of audit event.
type EventType string

const (
	EventZoneCommand      EventType = "ZONE_COMMAND"
	EventControlCommand   EventType = "CONTROL_COMMAND"
	EventSyncRequested    EventType = "SYNC_REQUESTED"
	EventConfigReloaded   EventType = "CONFIG_RELOADED"
	EventDeviceDiscovered EventType = "DEVICE_DISCOVERED"
	EventSystemStartup    EventType = "SYSTEM_STARTUP"
	EventSystemError      EventType = "SYSTEM_ERROR"
)

// EventCorrelation contains IDs that link related events together.
type EventCorrelation struct {
	RequestID *string `json:"request_id,omitempty"`
	ZoneID    *string `json:"zone_id,omitempty"`
}

// validEventTypes is the set accepted by POST /v1/audit/events.
var validEventTypes = map[string]bool{
	string(EventZoneCommand):      true,
	string(EventControlCommand):   true,
	string(EventSyncRequested):    true,
	string(EventConfigReloaded):   true,
	string(EventDeviceDiscovered): true,
	string(EventSystemStartup):    true,
	string(EventSystemError):      true,
}
