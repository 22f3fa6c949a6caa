package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/strefethen/sonos-multiroom-go/internal/sonos/soap"
)

// httpClient is a shared client with reasonable timeouts to prevent hanging on unreachable devices.
var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
		TLSHandshakeTimeout: 3 * time.Second,
		IdleConnTimeout:     30 * time.Second,
	},
}

// Player is a probed zone player.
type Player struct {
	UUID            string    `json:"uuid"`
	Host            string    `json:"host"`
	RoomName        string    `json:"room_name"`
	Model           string    `json:"model"`
	ModelNumber     string    `json:"model_number"`
	SerialNumber    string    `json:"serial_number"`
	SoftwareVersion string    `json:"software_version"`
	HardwareVersion string    `json:"hardware_version"`
	AudioIn         bool      `json:"audio_in"`
	HTControl       bool      `json:"ht_control"`
	ZoneMaster      bool      `json:"zone_master"`
	Location        string    `json:"location"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

// ProbeDevice reads a player's device description and zone status. A
// player is a zone master when /status/zp reports a zone group; bonded
// satellites and subwoofers report none.
func ProbeDevice(ctx context.Context, host string) (*Player, error) {
	base := soap.DeviceURL(host)
	location := base + "/xml/device_description.xml"

	body, err := fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	desc, err := ParseDeviceDescription(body)
	if err != nil {
		return nil, err
	}

	player := &Player{
		UUID:            desc.UDN,
		Host:            host,
		RoomName:        desc.RoomName,
		Model:           desc.ModelName,
		ModelNumber:     desc.ModelNumber,
		SerialNumber:    desc.SerialNumber,
		SoftwareVersion: desc.SoftwareVersion,
		HardwareVersion: desc.HardwareVersion,
		AudioIn:         desc.AudioIn,
		HTControl:       desc.HTControl,
		Location:        location,
		DiscoveredAt:    time.Now(),
	}
	if player.UUID == "" {
		return nil, fmt.Errorf("device at %s has no UDN", host)
	}

	if zoneBody, err := fetch(ctx, base+"/status/zp"); err == nil {
		if info, _ := ParseZoneInfo(zoneBody); info != nil {
			player.RoomName = info.RoomName
			player.ZoneMaster = info.ZoneGroupID != ""
		}
	}

	return player, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
