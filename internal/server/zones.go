package server

import (
	"log"
	"strings"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/discovery"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// zoneBinding ties a configured zone to the player serving it.
type zoneBinding struct {
	descriptor zone.Descriptor
	player     *discovery.Player
}

// bindZones matches zone file entries to zone-master players by room
// name. Entries with no player are logged and left out.
func bindZones(file *config.ZoneFile, players []*discovery.Player, logger *log.Logger) []zoneBinding {
	byRoom := make(map[string]*discovery.Player, len(players))
	for _, p := range discovery.ZoneMasters(players) {
		byRoom[strings.ToLower(p.RoomName)] = p
	}

	bindings := make([]zoneBinding, 0, len(file.Zones))
	for _, entry := range file.Zones {
		player, ok := byRoom[strings.ToLower(entry.Name)]
		if !ok {
			logger.Printf("ZONE: no player found for %q, skipping", entry.Name)
			continue
		}
		caps := zone.Capabilities{HomeTheater: player.HTControl, AudioIn: player.AudioIn}
		bindings = append(bindings, zoneBinding{
			descriptor: entry.Descriptor(player.UUID, caps),
			player:     player,
		})
	}
	return bindings
}

// reloadConfigs maps a reloaded zone file onto the bound zone ids. Zones
// added to the file after startup need a restart.
func reloadConfigs(file *config.ZoneFile, bindings []zoneBinding, logger *log.Logger) map[string]zone.Config {
	configs := make(map[string]zone.Config, len(bindings))
	for _, b := range bindings {
		entry, ok := file.Entry(b.descriptor.Name)
		if !ok {
			logger.Printf("ZONE: %q removed from zone file, keeping previous config", b.descriptor.Name)
			continue
		}
		configs[b.descriptor.ID] = entry.ZoneConfig()
	}
	for _, entry := range file.Zones {
		if !bound(bindings, entry.Name) {
			logger.Printf("ZONE: %q is new in zone file, restart to bind it", entry.Name)
		}
	}
	return configs
}

func bound(bindings []zoneBinding, name string) bool {
	for _, b := range bindings {
		if strings.EqualFold(b.descriptor.Name, name) {
			return true
		}
	}
	return false
}

// unboundZones names the zone file entries no player serves.
func unboundZones(file *config.ZoneFile, bindings []zoneBinding) []string {
	var names []string
	for _, entry := range file.Zones {
		if !bound(bindings, entry.Name) {
			names = append(names, entry.Name)
		}
	}
	return names
}
