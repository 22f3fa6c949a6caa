package soap

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
)

func parseTextValue(payload []byte, element string) string {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == element {
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					return strings.TrimSpace(value)
				}
			}
		}
	}
	return ""
}

func parseTransportInfo(payload []byte) TransportInfo {
	return TransportInfo{
		CurrentTransportState:  parseTextValue(payload, "CurrentTransportState"),
		CurrentTransportStatus: parseTextValue(payload, "CurrentTransportStatus"),
		CurrentSpeed:           parseTextValue(payload, "CurrentSpeed"),
	}
}

func parseMediaInfo(payload []byte) MediaInfo {
	nrTracksStr := parseTextValue(payload, "NrTracks")
	nrTracks, _ := strconv.Atoi(nrTracksStr)

	return MediaInfo{
		NrTracks:           nrTracks,
		MediaDuration:      parseTextValue(payload, "MediaDuration"),
		CurrentURI:         parseTextValue(payload, "CurrentURI"),
		CurrentURIMetaData: parseTextValue(payload, "CurrentURIMetaData"),
	}
}

func parseVolume(payload []byte) VolumeInfo {
	volStr := parseTextValue(payload, "CurrentVolume")
	vol, _ := strconv.Atoi(volStr)
	return VolumeInfo{CurrentVolume: vol}
}

func parseMute(payload []byte) MuteInfo {
	muteStr := parseTextValue(payload, "CurrentMute")
	return MuteInfo{CurrentMute: muteStr == "1" || strings.EqualFold(muteStr, "true")}
}

// parseZoneGroupState parses GetZoneGroupState response XML and returns minimal structure.
func parseZoneGroupState(payload []byte) ZoneGroupState {
	zoneXML := parseTextValue(payload, "ZoneGroupState")
	if zoneXML == "" {
		zoneXML = string(payload)
	}

	decoder := xml.NewDecoder(strings.NewReader(zoneXML))
	var state ZoneGroupState
	var currentGroup *ZoneGroup
	var coordinator string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "ZoneGroup":
				group := ZoneGroup{}
				coordinator = ""
				for _, attr := range se.Attr {
					if attr.Name.Local == "ID" {
						group.ID = attr.Value
					}
					if attr.Name.Local == "Coordinator" {
						group.Coordinator = attr.Value
						coordinator = attr.Value
					}
				}
				state.Groups = append(state.Groups, group)
				currentGroup = &state.Groups[len(state.Groups)-1]
			case "ZoneGroupMember":
				if currentGroup == nil {
					continue
				}
				member := ZoneMember{
					IsVisible: true,
				}
				for _, attr := range se.Attr {
					switch attr.Name.Local {
					case "UUID":
						member.UUID = attr.Value
					case "ZoneName":
						member.ZoneName = attr.Value
					case "Location":
						member.Location = attr.Value
					case "ChannelMapSet":
						member.ChannelMapSet = attr.Value
					case "Invisible":
						member.IsVisible = !(attr.Value == "true" || attr.Value == "1")
					}
				}
				if member.UUID != "" && member.UUID == coordinator {
					member.IsCoordinator = true
				}
				currentGroup.Members = append(currentGroup.Members, member)
			case "Satellite":
				if currentGroup == nil {
					continue
				}
				satellite := ZoneMember{}
				var htSatChan string
				for _, attr := range se.Attr {
					switch attr.Name.Local {
					case "UUID":
						satellite.UUID = attr.Value
					case "ZoneName":
						satellite.ZoneName = attr.Value
					case "Location":
						satellite.Location = attr.Value
					case "ChannelMapSet":
						satellite.ChannelMapSet = attr.Value
					case "HTSatChanMapSet":
						htSatChan = attr.Value
					}
				}
				if strings.Contains(htSatChan, ":SW") {
					satellite.IsSubwoofer = true
				}
				if strings.Contains(htSatChan, ":LR") || strings.Contains(htSatChan, ":RR") {
					satellite.IsSatellite = true
				}
				if satellite.UUID != "" {
					currentGroup.Members = append(currentGroup.Members, satellite)
				}
			}
		}
	}

	return state
}
