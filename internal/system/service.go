package system

import (
	"context"
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/strefethen/sonos-multiroom-go/internal/sonos/events"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// Version is the controller version, set at build time or defaulted.
var Version = "1.0.0"

// Attention item severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ZoneSource is the part of the zone engine system status reads.
type ZoneSource interface {
	Zones(ctx context.Context) ([]zone.Zone, error)
	Pending(ctx context.Context) (int, error)
}

// Deps are the optional collaborators whose health is reported.
type Deps struct {
	Zones        ZoneSource
	DB           *sql.DB
	Events       func() events.ManagerStats
	StreamCount  func() int
	AuditHealthy func() bool
	// Unbound lists zone file entries no player was found for.
	Unbound []string
}

// Service provides system information and attention items.
type Service struct {
	deps      Deps
	logger    *log.Logger
	startTime time.Time
	now       func() time.Time
}

// NewService creates a new system service.
func NewService(deps Deps, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{deps: deps, logger: logger, startTime: time.Now(), now: time.Now}
}

// SystemInfo holds system information.
type SystemInfo struct {
	Version         string               `json:"version"`
	Uptime          int64                `json:"uptime_seconds"`
	MemoryUsageMB   float64              `json:"memory_mb"`
	SQLiteConnected bool                 `json:"sqlite_connected"`
	ZonesTotal      int                  `json:"zones_total"`
	ZonesPowered    int                  `json:"zones_powered"`
	PendingCommands int                  `json:"pending_commands"`
	StreamClients   int                  `json:"stream_clients"`
	AuditHealthy    bool                 `json:"audit_healthy"`
	Events          *events.ManagerStats `json:"upnp_events,omitempty"`
}

// AttentionItem represents an item that needs user attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := &SystemInfo{
		Version:       Version,
		Uptime:        int64(s.now().Sub(s.startTime).Seconds()),
		MemoryUsageMB: float64(memStats.Alloc) / 1024 / 1024,
		AuditHealthy:  true,
	}

	if s.deps.DB != nil {
		info.SQLiteConnected = s.deps.DB.PingContext(ctx) == nil
	}
	if s.deps.Zones != nil {
		zones, err := s.deps.Zones.Zones(ctx)
		if err != nil {
			return nil, err
		}
		info.ZonesTotal = len(zones)
		for _, z := range zones {
			if z.Power {
				info.ZonesPowered++
			}
		}
		if info.PendingCommands, err = s.deps.Zones.Pending(ctx); err != nil {
			return nil, err
		}
	}
	if s.deps.StreamCount != nil {
		info.StreamClients = s.deps.StreamCount()
	}
	if s.deps.AuditHealthy != nil {
		info.AuditHealthy = s.deps.AuditHealthy()
	}
	if s.deps.Events != nil {
		stats := s.deps.Events()
		info.Events = &stats
	}
	return info, nil
}

// GetAttentionItems lists conditions an operator should fix.
func (s *Service) GetAttentionItems(ctx context.Context) ([]AttentionItem, error) {
	items := []AttentionItem{}

	for _, name := range s.deps.Unbound {
		items = append(items, AttentionItem{
			Type:        "zone_unbound",
			Severity:    SeverityWarning,
			Message:     "No player found for zone " + name,
			Details:     map[string]any{"zone_name": name},
			ResolveHint: "Check the room name matches the player, or add its address to STATIC_DEVICE_IPS",
		})
	}

	info, err := s.GetSystemInfo(ctx)
	if err != nil {
		return nil, err
	}
	if s.deps.DB != nil && !info.SQLiteConnected {
		items = append(items, AttentionItem{
			Type:     "database_unavailable",
			Severity: SeverityError,
			Message:  "SQLite database is not responding",
		})
	}
	if !info.AuditHealthy {
		items = append(items, AttentionItem{
			Type:     "audit_failing",
			Severity: SeverityWarning,
			Message:  "Audit events are failing to write",
		})
	}
	if info.Events != nil && info.Events.Enabled {
		if info.Events.ActiveSubscriptions == 0 && info.ZonesTotal > 0 {
			items = append(items, AttentionItem{
				Type:        "upnp_no_subscriptions",
				Severity:    SeverityWarning,
				Message:     "No UPnP event subscriptions are active; zone state only updates on periodic sync",
				ResolveHint: "Set UPNP_CALLBACK_HOST to an address the players can reach",
			})
		}
		if info.Events.RenewalFailures > 0 {
			items = append(items, AttentionItem{
				Type:     "upnp_renewal_failures",
				Severity: SeverityWarning,
				Message:  "UPnP subscription renewals have failed",
				Details:  map[string]any{"renewal_failures": info.Events.RenewalFailures},
			})
		}
	}
	return items, nil
}
