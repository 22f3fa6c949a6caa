package discovery

import (
	"context"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Options controls a discovery run.
type Options struct {
	Passes       int
	PassInterval time.Duration
	Timeout      time.Duration
	KnownHosts   []string
	ProbeTimeout time.Duration
	Logger       *log.Logger
}

// DiscoverPlayers runs SSDP search, probes every responder, then probes
// known hosts SSDP missed. Probe failures are logged and skipped.
func DiscoverPlayers(ctx context.Context, opts Options) ([]*Player, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}

	var hosts []string
	if opts.Passes > 0 {
		responses, err := Discover(ctx, opts.Passes, opts.PassInterval, opts.Timeout)
		if err != nil {
			logger.Printf("DISCOVERY: SSDP error: %v", err)
			return nil, err
		}
		logger.Printf("DISCOVERY: SSDP returned %d responses", len(responses))
		for _, resp := range responses {
			if host := extractHost(resp.Location); host != "" {
				hosts = append(hosts, host)
			}
		}
	}
	hosts = append(hosts, opts.KnownHosts...)

	seen := make(map[string]struct{})
	players := make([]*Player, 0, len(hosts))
	for _, host := range hosts {
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}

		// Each probe gets its own deadline.
		probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		player, err := ProbeDevice(probeCtx, host)
		cancel()
		if err != nil {
			logger.Printf("DISCOVERY: probe failed for %s: %v", host, err)
			continue
		}
		players = append(players, player)
		logger.Printf("DISCOVERY: found %s (%s, %s)", player.RoomName, host, player.UUID)
	}

	sort.Slice(players, func(i, j int) bool { return players[i].RoomName < players[j].RoomName })
	logger.Printf("DISCOVERY: complete, %d players", len(players))
	return players, nil
}

// ZoneMasters keeps one player per room: the one reporting a zone group.
func ZoneMasters(players []*Player) []*Player {
	out := make([]*Player, 0, len(players))
	rooms := make(map[string]struct{})
	for _, p := range players {
		if !p.ZoneMaster {
			continue
		}
		if _, dup := rooms[p.RoomName]; dup {
			continue
		}
		rooms[p.RoomName] = struct{}{}
		out = append(out, p)
	}
	return out
}

func extractHost(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	host := strings.TrimSpace(parsed.Hostname())
	if port := parsed.Port(); port != "" && port != "1400" && host != "" {
		return host + ":" + port
	}
	return host
}
