package discovery

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// DeviceDescription is the subset of /xml/device_description.xml the
// zone layer needs.
type DeviceDescription struct {
	ModelName       string
	ModelNumber     string
	RoomName        string
	SerialNumber    string
	SoftwareVersion string
	HardwareVersion string
	UDN             string
	AudioIn         bool
	HTControl       bool
}

type ZoneInfo struct {
	RoomName      string
	ZoneGroupID   string
	Coordinator   string
	IsCoordinator bool
}

func ParseDeviceDescription(xmlPayload []byte) (*DeviceDescription, error) {
	decoder := xml.NewDecoder(bytes.NewReader(xmlPayload))
	var desc DeviceDescription

	var friendlyName string
	var udnRaw string
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var value string
		switch se.Name.Local {
		case "friendlyName", "modelName", "modelNumber", "serialNum",
			"softwareVersion", "hardwareVersion", "UDN", "serviceId":
			if err := decoder.DecodeElement(&value, &se); err != nil {
				continue
			}
			value = strings.TrimSpace(value)
		default:
			continue
		}

		switch se.Name.Local {
		case "friendlyName":
			if friendlyName == "" {
				friendlyName = value
			}
		case "modelName":
			if desc.ModelName == "" {
				desc.ModelName = value
			}
		case "modelNumber":
			if desc.ModelNumber == "" {
				desc.ModelNumber = value
			}
		case "serialNum":
			desc.SerialNumber = value
		case "softwareVersion":
			desc.SoftwareVersion = value
		case "hardwareVersion":
			desc.HardwareVersion = value
		case "UDN":
			// The root device comes first; embedded MediaServer and
			// MediaRenderer devices carry _MS/_MR suffixed UDNs.
			if udnRaw == "" {
				udnRaw = value
			}
		case "serviceId":
			// urn:upnp-org:serviceId:AudioIn
			switch serviceName(value) {
			case "AudioIn":
				desc.AudioIn = true
			case "HTControl":
				desc.HTControl = true
			}
		}
	}

	if friendlyName != "" {
		desc.RoomName = parseRoomName(friendlyName)
	}
	desc.UDN = strings.TrimPrefix(udnRaw, "uuid:")

	return &desc, nil
}

func serviceName(serviceID string) string {
	parts := strings.Split(serviceID, ":")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

func parseRoomName(friendlyName string) string {
	if friendlyName == "" {
		return ""
	}
	parts := strings.SplitN(friendlyName, "-", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(friendlyName)
}

// ParseZoneInfo parses /status/zp. It returns nil when the payload has no
// zone name.
func ParseZoneInfo(xmlPayload []byte) (*ZoneInfo, error) {
	decoder := xml.NewDecoder(bytes.NewReader(xmlPayload))
	var info ZoneInfo

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var value string
		switch se.Name.Local {
		case "ZoneName", "ZoneGroupID", "Coordinator", "IsCoordinator":
			if err := decoder.DecodeElement(&value, &se); err != nil {
				continue
			}
			value = strings.TrimSpace(value)
		default:
			continue
		}
		switch se.Name.Local {
		case "ZoneName":
			info.RoomName = value
		case "ZoneGroupID":
			info.ZoneGroupID = value
		case "Coordinator":
			info.Coordinator = value
		case "IsCoordinator":
			info.IsCoordinator = value == "1" || strings.EqualFold(value, "true")
		}
	}

	if info.RoomName == "" {
		return nil, nil
	}
	return &info, nil
}
