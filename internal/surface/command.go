// Package surface exposes the zone engine to control surfaces other than
// the REST API: a websocket stream, an MQTT bridge and an InfluxDB history
// sink.
package surface

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// Controller is the command side of the zone engine.
type Controller interface {
	SetPower(ref string, on bool) error
	SetVolume(ref string, volume int) error
	PowerOffAll() error
	SetGlobalPower(on bool) error
	SetMuteAll(mute bool) error
	SetRemoteVolumeOverride(enabled bool) error
	SetRemoteAutoGroup(enabled bool) error
	RequestSync(reason string) error
}

// StateSource is the query side of the zone engine.
type StateSource interface {
	Zones(ctx context.Context) ([]zone.Zone, error)
	Global(ctx context.Context) (zone.GlobalSnapshot, error)
}

// Command actions accepted from control surfaces.
const (
	ActionPower           = "power"
	ActionVolume          = "volume"
	ActionGlobalPower     = "global_power"
	ActionMuteAll         = "mute"
	ActionRemoteVolume    = "remote_volume"
	ActionRemoteAutoGroup = "remote_auto_group"
	ActionSync            = "sync"
)

// ErrInvalidCommand is returned for malformed surface commands.
var ErrInvalidCommand = errors.New("invalid command")

// Command is a surface-originated request.
type Command struct {
	Action  string `json:"action"`
	ZoneID  string `json:"zone_id,omitempty"`
	On      *bool  `json:"on,omitempty"`
	Volume  *int   `json:"volume,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Apply runs cmd against the controller.
func Apply(ctrl Controller, cmd Command, source string) error {
	switch cmd.Action {
	case ActionPower:
		if cmd.ZoneID == "" || cmd.On == nil {
			return fmt.Errorf("%w: power needs zone_id and on", ErrInvalidCommand)
		}
		return ctrl.SetPower(cmd.ZoneID, *cmd.On)
	case ActionVolume:
		if cmd.ZoneID == "" || cmd.Volume == nil {
			return fmt.Errorf("%w: volume needs zone_id and volume", ErrInvalidCommand)
		}
		return ctrl.SetVolume(cmd.ZoneID, *cmd.Volume)
	case ActionGlobalPower:
		flag, err := flagOf(cmd)
		if err != nil {
			return err
		}
		if !flag {
			return ctrl.PowerOffAll()
		}
		return ctrl.SetGlobalPower(true)
	case ActionMuteAll:
		flag, err := flagOf(cmd)
		if err != nil {
			return err
		}
		return ctrl.SetMuteAll(flag)
	case ActionRemoteVolume:
		flag, err := flagOf(cmd)
		if err != nil {
			return err
		}
		return ctrl.SetRemoteVolumeOverride(flag)
	case ActionRemoteAutoGroup:
		flag, err := flagOf(cmd)
		if err != nil {
			return err
		}
		return ctrl.SetRemoteAutoGroup(flag)
	case ActionSync:
		return ctrl.RequestSync(source)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
}

func flagOf(cmd Command) (bool, error) {
	switch {
	case cmd.Enabled != nil:
		return *cmd.Enabled, nil
	case cmd.On != nil:
		return *cmd.On, nil
	default:
		return false, fmt.Errorf("%w: %s needs enabled", ErrInvalidCommand, cmd.Action)
	}
}

// ParseSwitch reads the payloads home automation systems send for a
// switch: true/false, on/off, 1/0.
func ParseSwitch(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: switch payload %q", ErrInvalidCommand, raw)
	}
}

// ParseLevel reads an integer volume payload. Fractions are truncated.
func ParseLevel(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if v, err := strconv.Atoi(trimmed); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: level payload %q", ErrInvalidCommand, raw)
	}
	return int(f), nil
}
