package soap

import (
	"context"
	"strconv"
)

// Transport Actions
func (c *Client) GetTransportInfo(ctx context.Context, ip string) (TransportInfo, error) {
	payload, err := c.ExecuteAction(ctx, ip, ServiceAVTransport, "GetTransportInfo", map[string]string{
		"InstanceID": "0",
	})
	if err != nil {
		return TransportInfo{}, err
	}
	return parseTransportInfo(payload), nil
}

func (c *Client) GetMediaInfo(ctx context.Context, ip string) (MediaInfo, error) {
	payload, err := c.ExecuteAction(ctx, ip, ServiceAVTransport, "GetMediaInfo", map[string]string{
		"InstanceID": "0",
	})
	if err != nil {
		return MediaInfo{}, err
	}
	return parseMediaInfo(payload), nil
}

func (c *Client) Play(ctx context.Context, ip string) error {
	_, err := c.ExecuteAction(ctx, ip, ServiceAVTransport, "Play", map[string]string{
		"InstanceID": "0",
		"Speed":      "1",
	})
	return err
}

func (c *Client) SetAVTransportURI(ctx context.Context, ip, uri, metadata string) error {
	_, err := c.ExecuteAction(ctx, ip, ServiceAVTransport, "SetAVTransportURI", map[string]string{
		"InstanceID":         "0",
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
	return err
}

// JoinGroup points the player at ip to the coordinator's stream.
func (c *Client) JoinGroup(ctx context.Context, ip, coordinatorUUID string) error {
	return c.SetAVTransportURI(ctx, ip, RinconPrefix+coordinatorUUID, "")
}

func (c *Client) BecomeCoordinatorOfStandaloneGroup(ctx context.Context, ip string) error {
	_, err := c.ExecuteAction(ctx, ip, ServiceAVTransport, "BecomeCoordinatorOfStandaloneGroup", map[string]string{
		"InstanceID": "0",
	})
	return err
}

// RenderingControl Actions
func (c *Client) GetVolume(ctx context.Context, ip string) (VolumeInfo, error) {
	payload, err := c.ExecuteAction(ctx, ip, ServiceRenderingControl, "GetVolume", map[string]string{
		"InstanceID": "0",
		"Channel":    "Master",
	})
	if err != nil {
		return VolumeInfo{}, err
	}
	return parseVolume(payload), nil
}

func (c *Client) SetVolume(ctx context.Context, ip string, level int) error {
	_, err := c.ExecuteAction(ctx, ip, ServiceRenderingControl, "SetVolume", map[string]string{
		"InstanceID":    "0",
		"Channel":       "Master",
		"DesiredVolume": strconv.Itoa(level),
	})
	return err
}

func (c *Client) GetMute(ctx context.Context, ip string) (MuteInfo, error) {
	payload, err := c.ExecuteAction(ctx, ip, ServiceRenderingControl, "GetMute", map[string]string{
		"InstanceID": "0",
		"Channel":    "Master",
	})
	if err != nil {
		return MuteInfo{}, err
	}
	return parseMute(payload), nil
}

func (c *Client) SetMute(ctx context.Context, ip string, mute bool) error {
	_, err := c.ExecuteAction(ctx, ip, ServiceRenderingControl, "SetMute", map[string]string{
		"InstanceID":  "0",
		"Channel":     "Master",
		"DesiredMute": boolFlag(mute),
	})
	return err
}

// SetEQ toggles a home-theater EQ setting (EQNightMode, EQDialogLevel).
func (c *Client) SetEQ(ctx context.Context, ip, eqType string, enabled bool) error {
	_, err := c.ExecuteAction(ctx, ip, ServiceRenderingControl, "SetEQ", map[string]string{
		"InstanceID":   "0",
		"EQType":       eqType,
		"DesiredValue": boolFlag(enabled),
	})
	return err
}

// ZoneGroupTopology Actions
func (c *Client) GetZoneGroupState(ctx context.Context, ip string) (ZoneGroupState, error) {
	payload, err := c.ExecuteAction(ctx, ip, ServiceZoneGroupTopology, "GetZoneGroupState", map[string]string{})
	if err != nil {
		return ZoneGroupState{}, err
	}
	return parseZoneGroupState(payload), nil
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
