package events

import (
	"encoding/xml"
	"html"
	"strconv"
	"strings"
)

// UPnP propertyset structure
type propertyset struct {
	XMLName    xml.Name   `xml:"propertyset"`
	Properties []property `xml:"property"`
}

type property struct {
	LastChange     string `xml:"LastChange"`
	ZoneGroupState string `xml:"ZoneGroupState"`
}

// AVTransport LastChange event structure
type avTransportEvent struct {
	XMLName    xml.Name            `xml:"Event"`
	InstanceID avTransportInstance `xml:"InstanceID"`
}

type avTransportInstance struct {
	Val             string  `xml:"val,attr"`
	TransportState  attrVal `xml:"TransportState"`
	CurrentTrackURI attrVal `xml:"CurrentTrackURI"`
	AVTransportURI  attrVal `xml:"AVTransportURI"`
}

type attrVal struct {
	Val string `xml:"val,attr"`
}

// RenderingControl LastChange event structure
type renderingControlEvent struct {
	XMLName    xml.Name                 `xml:"Event"`
	InstanceID renderingControlInstance `xml:"InstanceID"`
}

// Volume and Mute repeat once per channel (Master, LF, RF).
type renderingControlInstance struct {
	Val         string           `xml:"val,attr"`
	Volume      []channelAttrVal `xml:"Volume"`
	Mute        []channelAttrVal `xml:"Mute"`
	NightMode   *attrVal         `xml:"NightMode"`
	DialogLevel *attrVal         `xml:"DialogLevel"`
}

type channelAttrVal struct {
	Channel string `xml:"channel,attr"`
	Val     string `xml:"val,attr"`
}

// ParseNotifyBody parses a UPnP NOTIFY event body.
// Sonos events use double-encoded XML in the LastChange property.
func ParseNotifyBody(body []byte, serviceType ServiceType) (*NotifyEvent, error) {
	event := &NotifyEvent{
		ServiceType: serviceType,
		RawBody:     body,
	}

	// Parse the outer propertyset envelope
	var ps propertyset
	if err := xml.Unmarshal(body, &ps); err != nil {
		return nil, err
	}

	for _, prop := range ps.Properties {
		switch serviceType {
		case ServiceAVTransport:
			if prop.LastChange == "" {
				continue
			}
			avEvent, err := parseAVTransportLastChange(prop.LastChange)
			if err != nil {
				return nil, err
			}
			event.Transport = mergeTransport(event.Transport, avEvent)
		case ServiceRenderingControl:
			if prop.LastChange == "" {
				continue
			}
			rcEvent, err := parseRenderingControlLastChange(prop.LastChange)
			if err != nil {
				return nil, err
			}
			event.Rendering = mergeRendering(event.Rendering, rcEvent)
		case ServiceZoneGroupTopology:
			if prop.ZoneGroupState != "" {
				event.Topology = &ZoneGroupTopologyEvent{ZoneGroupState: prop.ZoneGroupState}
			}
		}
	}

	return event, nil
}

// parseAVTransportLastChange parses the LastChange XML. xml.Unmarshal has
// already undone the outer escaping; metadata attributes may still carry
// entity-encoded DIDL, which is left alone.
func parseAVTransportLastChange(xmlContent string) (*AVTransportEvent, error) {
	var evt avTransportEvent
	if err := xml.Unmarshal([]byte(xmlContent), &evt); err != nil {
		return nil, err
	}

	return &AVTransportEvent{
		TransportState:  evt.InstanceID.TransportState.Val,
		CurrentTrackURI: html.UnescapeString(evt.InstanceID.CurrentTrackURI.Val),
		AVTransportURI:  html.UnescapeString(evt.InstanceID.AVTransportURI.Val),
	}, nil
}

// parseRenderingControlLastChange parses the RenderingControl LastChange XML.
// Only the Master channel is reported.
func parseRenderingControlLastChange(xmlContent string) (*RenderingControlEvent, error) {
	var evt renderingControlEvent
	if err := xml.Unmarshal([]byte(xmlContent), &evt); err != nil {
		return nil, err
	}

	event := &RenderingControlEvent{}
	for _, v := range evt.InstanceID.Volume {
		if !isMaster(v.Channel) {
			continue
		}
		if vol, err := strconv.Atoi(v.Val); err == nil {
			event.Volume = &vol
		}
	}
	for _, m := range evt.InstanceID.Mute {
		if isMaster(m.Channel) {
			event.Muted = flag(m.Val)
		}
	}
	if evt.InstanceID.NightMode != nil {
		event.NightMode = flag(evt.InstanceID.NightMode.Val)
	}
	if evt.InstanceID.DialogLevel != nil {
		event.DialogLevel = flag(evt.InstanceID.DialogLevel.Val)
	}

	return event, nil
}

func isMaster(channel string) bool {
	return channel == "" || strings.EqualFold(channel, "Master")
}

func flag(val string) *bool {
	on := val == "1" || strings.EqualFold(val, "true")
	return &on
}

func mergeTransport(into, evt *AVTransportEvent) *AVTransportEvent {
	if into == nil {
		return evt
	}
	if evt.TransportState != "" {
		into.TransportState = evt.TransportState
	}
	if evt.CurrentTrackURI != "" {
		into.CurrentTrackURI = evt.CurrentTrackURI
	}
	if evt.AVTransportURI != "" {
		into.AVTransportURI = evt.AVTransportURI
	}
	return into
}

func mergeRendering(into, evt *RenderingControlEvent) *RenderingControlEvent {
	if into == nil {
		return evt
	}
	if evt.Volume != nil {
		into.Volume = evt.Volume
	}
	if evt.Muted != nil {
		into.Muted = evt.Muted
	}
	if evt.NightMode != nil {
		into.NightMode = evt.NightMode
	}
	if evt.DialogLevel != nil {
		into.DialogLevel = evt.DialogLevel
	}
	return into
}

// ParseSID extracts the subscription ID from a SUBSCRIBE response header.
func ParseSID(sidHeader string) string {
	// SID format: uuid:RINCON_xxx_sub0000000001
	return strings.TrimSpace(sidHeader)
}

// ParseTimeout extracts the timeout value from a SUBSCRIBE response header.
// Returns timeout in seconds.
func ParseTimeout(timeoutHeader string) int {
	// Timeout format: Second-3600 or infinite
	if timeoutHeader == "infinite" {
		// Keeps the renewal buffer subtraction positive.
		return 86400
	}

	timeoutHeader = strings.TrimPrefix(timeoutHeader, "Second-")
	if timeout, err := strconv.Atoi(timeoutHeader); err == nil {
		return timeout
	}
	return 3600 // Default to 1 hour
}

// ParseSEQ extracts the sequence number from a NOTIFY header.
func ParseSEQ(seqHeader string) int {
	if seq, err := strconv.Atoi(seqHeader); err == nil {
		return seq
	}
	return 0
}

// InferServiceTypeFromPath infers the service type from the callback path.
func InferServiceTypeFromPath(path string) ServiceType {
	switch {
	case strings.Contains(path, "avtransport"):
		return ServiceAVTransport
	case strings.Contains(path, "renderingcontrol"):
		return ServiceRenderingControl
	case strings.Contains(path, "topology"):
		return ServiceZoneGroupTopology
	default:
		return ServiceAVTransport // Default
	}
}
