package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// ZoneFile is the YAML zone configuration.
//
//	zones:
//	  - name: Living Room
//	    priorities: [Kitchen]
//	    autoGroup: [Dining Room]
//	    defaultGroupVolume: 16
//	    remotelyControlled: true
//	control:
//	  remoteVolumeOverride: true
type ZoneFile struct {
	Zones   []ZoneEntry   `yaml:"zones"`
	Control ControlConfig `yaml:"control"`
}

// ZoneEntry configures one zone, matched to a player by room name.
type ZoneEntry struct {
	Name                       string   `yaml:"name"`
	Priorities                 []string `yaml:"priorities"`
	AutoGroup                  []string `yaml:"autoGroup"`
	IsAutoPlayDisabled         bool     `yaml:"isAutoPlayDisabled"`
	DefaultGroupVolume         *int     `yaml:"defaultGroupVolume"`
	VolumeControlled           bool     `yaml:"volumeControlled"`
	GroupOverride              bool     `yaml:"groupOverride"`
	RemotelyControlled         bool     `yaml:"remotelyControlled"`
	TVOverride                 bool     `yaml:"tvOverride"`
	IsNightModeEnabled         bool     `yaml:"isNightModeEnabled"`
	IsSpeechEnhancementEnabled bool     `yaml:"isSpeechEnhancementEnabled"`
	MinVolume                  *int     `yaml:"minVolume"`
	MaxVolume                  *int     `yaml:"maxVolume"`
}

// ControlConfig holds the initial state of the global toggles.
type ControlConfig struct {
	Name                 string `yaml:"name"`
	RemoteVolumeOverride bool   `yaml:"remoteVolumeOverride"`
	RemoteAutoGroup      bool   `yaml:"remoteAutoGroupOverride"`
}

// LoadZones reads and validates a zone file.
func LoadZones(path string) (*ZoneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone file: %w", err)
	}
	return ParseZones(data)
}

// ParseZones parses and validates zone YAML.
func ParseZones(data []byte) (*ZoneFile, error) {
	var file ZoneFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse zone file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Zones))
	for i, entry := range file.Zones {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("zone %d: name is required", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("zone %q: duplicate name", name)
		}
		seen[key] = struct{}{}

		lo, hi := entry.Bounds()
		if lo < 0 || hi > zone.DefaultMaxVolume || lo > hi {
			return nil, fmt.Errorf("zone %q: volume bounds %d..%d out of range", name, lo, hi)
		}
		if ref := entry.DefaultGroupVolume; ref != nil && (*ref < 0 || *ref > zone.DefaultMaxVolume) {
			return nil, fmt.Errorf("zone %q: defaultGroupVolume %d out of range", name, *ref)
		}
		file.Zones[i].Name = name
	}
	return &file, nil
}

// Entry finds a zone entry by room name, exact match first.
func (f *ZoneFile) Entry(name string) (ZoneEntry, bool) {
	for _, e := range f.Zones {
		if e.Name == name {
			return e, true
		}
	}
	for _, e := range f.Zones {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return ZoneEntry{}, false
}

// Bounds returns the configured volume range, defaulting to 0..100.
func (e ZoneEntry) Bounds() (int, int) {
	lo, hi := 0, zone.DefaultMaxVolume
	if e.MinVolume != nil {
		lo = *e.MinVolume
	}
	if e.MaxVolume != nil {
		hi = *e.MaxVolume
	}
	return lo, hi
}

// ZoneConfig converts the entry into the engine's per-zone config.
func (e ZoneEntry) ZoneConfig() zone.Config {
	ref := zone.DefaultReferenceVolume
	if e.DefaultGroupVolume != nil {
		ref = *e.DefaultGroupVolume
	}
	return zone.Config{
		PriorityList:             append([]string(nil), e.Priorities...),
		AutoGroupTargets:         append([]string(nil), e.AutoGroup...),
		AutoPlayDisabled:         e.IsAutoPlayDisabled,
		GroupOverride:            e.GroupOverride,
		TVOverride:               e.TVOverride,
		RemotelyControlled:       e.RemotelyControlled,
		DefaultReferenceVolume:   ref,
		VolumeControlled:         e.VolumeControlled,
		NightModeEnabled:         e.IsNightModeEnabled,
		SpeechEnhancementEnabled: e.IsSpeechEnhancementEnabled,
	}
}

// Descriptor builds the zone descriptor for the player with id.
func (e ZoneEntry) Descriptor(id string, caps zone.Capabilities) zone.Descriptor {
	lo, hi := e.Bounds()
	return zone.Descriptor{
		ID:           id,
		Name:         e.Name,
		MinVolume:    lo,
		MaxVolume:    hi,
		Capabilities: caps,
		Config:       e.ZoneConfig(),
	}
}
