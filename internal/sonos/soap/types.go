package soap

// Service identifies a Sonos UPnP service.
type Service string

const (
	ServiceAVTransport       Service = "AVTransport"
	ServiceRenderingControl  Service = "RenderingControl"
	ServiceZoneGroupTopology Service = "ZoneGroupTopology"
)

var serviceTypes = map[Service]string{
	ServiceAVTransport:       "urn:schemas-upnp-org:service:AVTransport:1",
	ServiceRenderingControl:  "urn:schemas-upnp-org:service:RenderingControl:1",
	ServiceZoneGroupTopology: "urn:upnp-org:serviceId:ZoneGroupTopology",
}

var controlPaths = map[Service]string{
	ServiceAVTransport:       "/MediaRenderer/AVTransport/Control",
	ServiceRenderingControl:  "/MediaRenderer/RenderingControl/Control",
	ServiceZoneGroupTopology: "/ZoneGroupTopology/Control",
}

// EQ types accepted by RenderingControl SetEQ on home-theater players.
const (
	EQNightMode   = "NightMode"
	EQDialogLevel = "DialogLevel"
)
