package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/sonos-multiroom-go/internal/api"
	"github.com/strefethen/sonos-multiroom-go/internal/audit"
	"github.com/strefethen/sonos-multiroom-go/internal/auth"
	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/db"
	"github.com/strefethen/sonos-multiroom-go/internal/discovery"
	"github.com/strefethen/sonos-multiroom-go/internal/openapi"
	"github.com/strefethen/sonos-multiroom-go/internal/settings"
	"github.com/strefethen/sonos-multiroom-go/internal/sonos"
	"github.com/strefethen/sonos-multiroom-go/internal/sonos/events"
	"github.com/strefethen/sonos-multiroom-go/internal/sonos/soap"
	"github.com/strefethen/sonos-multiroom-go/internal/surface"
	"github.com/strefethen/sonos-multiroom-go/internal/system"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the zone stream upgrade through the logger.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
		})
	}
}

// Options controls server wiring.
type Options struct {
	// DisableDiscovery skips SSDP; only Players and static hosts are used.
	DisableDiscovery bool
	// Players replaces discovery entirely.
	Players []*discovery.Player
	// Device replaces the Sonos driver. UPnP events are off when set.
	Device zone.DeviceClient
	Logger *log.Logger
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	zoneFile, err := config.LoadZones(cfg.ZonesConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logger.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware(logger))
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	runCtx, cancelRun := context.WithCancel(context.Background())

	pairingStore := auth.NewPairingStore(auth.DefaultPairingTTL)
	pairingStore.StartCleanup(runCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg, logger)

	auditService := audit.NewService(cfg, dbPair, logger)
	auditService.Start()
	audit.RegisterRoutes(router, auditService)

	settingsService := settings.NewService(dbPair, logger)
	controls, err := settingsService.ControlSettings(settings.ControlSettings{
		RemoteVolumeOverride: zoneFile.Control.RemoteVolumeOverride,
		RemoteAutoGroup:      zoneFile.Control.RemoteAutoGroup,
	})
	if err != nil {
		cancelRun()
		auditService.Stop()
		_ = dbPair.Close()
		return nil, nil, fmt.Errorf("load control settings: %w", err)
	}
	settingsService.Seed(controls)
	settingsService.Start()
	settings.RegisterRoutes(router, settingsService)

	players := options.Players
	if players == nil {
		players = discoverPlayers(runCtx, cfg, options, logger)
	}
	bindings := bindZones(zoneFile, players, logger)
	descriptors := make([]zone.Descriptor, 0, len(bindings))
	for _, b := range bindings {
		descriptors = append(descriptors, b.descriptor)
		auditService.Enqueue(audit.WriteEventInput{
			Type:    string(audit.EventDeviceDiscovered),
			ZoneID:  &b.descriptor.ID,
			Message: fmt.Sprintf("%s bound to %s (%s)", b.descriptor.Name, b.player.Host, b.player.Model),
			Payload: map[string]any{"host": b.player.Host, "model": b.player.Model},
		})
	}

	device := options.Device
	var driver *sonos.Driver
	if device == nil {
		driver = sonos.NewDriver(soap.NewClient(cfg.SonosTimeout()), logger)
		for _, b := range bindings {
			driver.Register(b.descriptor.ID, b.player.Host)
		}
		device = driver
	}

	engine := zone.NewEngine(device, descriptors, zone.Options{
		Logger:               logger,
		PowerSettle:          config.Millis(cfg.PowerSettleMs),
		VolumeSettle:         config.Millis(cfg.VolumeSettleMs),
		UICorrection:         config.Millis(cfg.UICorrectionMs),
		RemoteDebounce:       config.Millis(cfg.RemoteVolumeDebounceMs),
		CallTimeout:          cfg.SonosTimeout(),
		RemoteVolumeOverride: controls.RemoteVolumeOverride,
		RemoteAutoGroup:      controls.RemoteAutoGroup,
		Recorder:             auditService,
	})
	zone.RegisterRoutes(router, engine)

	hub := surface.NewHub(engine, engine, logger)
	hub.RegisterRoutes(router)
	engine.OnSnapshot(hub.PublishZone)
	engine.OnGlobal(hub.PublishGlobal)
	engine.OnGlobal(settingsService.ObserveGlobal)

	var bridge *surface.MQTTBridge
	if cfg.MQTT.Enabled {
		bridge, err = surface.ConnectMQTT(cfg.MQTT, engine, logger)
		if err != nil {
			logger.Printf("MQTT: bridge disabled: %v", err)
		} else {
			engine.OnSnapshot(bridge.PublishZone)
			engine.OnGlobal(bridge.PublishGlobal)
		}
	}

	var history *surface.InfluxRecorder
	if cfg.Influx.Enabled {
		history, err = surface.ConnectInflux(cfg.Influx, logger)
		if err != nil {
			logger.Printf("INFLUX: history disabled: %v", err)
		} else {
			engine.OnSnapshot(history.RecordZone)
			engine.OnGlobal(history.RecordGlobal)
		}
	}

	var eventManager *events.Manager
	if driver != nil && cfg.UPnPEventsEnabled {
		eventManager = startEvents(runCtx, cfg, driver, bindings, router, logger)
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("ZONE: engine stopped: %v", err)
		}
	}()

	ticker, err := zone.NewSyncTicker(logger, engine, cfg.SyncSchedule)
	if err != nil {
		logger.Printf("ZONE: periodic sync disabled: %v", err)
	} else {
		ticker.Start()
	}

	var watcher *config.ZoneWatcher
	if cfg.ZonesConfigWatch {
		watcher, err = config.WatchZones(cfg.ZonesConfigPath, logger, func(file *config.ZoneFile) {
			if err := engine.ApplyConfigs(reloadConfigs(file, bindings, logger)); err != nil {
				logger.Printf("ZONE: config reload not applied: %v", err)
				return
			}
			auditService.Enqueue(audit.WriteEventInput{
				Type:    string(audit.EventConfigReloaded),
				Message: fmt.Sprintf("Zone file reloaded (%d zones)", len(file.Zones)),
				Payload: map[string]any{"path": cfg.ZonesConfigPath},
			})
		})
		if err != nil {
			logger.Printf("CONFIG: zone file watch disabled: %v", err)
		}
	}

	systemDeps := system.Deps{
		Zones:        engine,
		DB:           dbPair.Reader(),
		StreamCount:  hub.ClientCount,
		AuditHealthy: auditService.IsHealthy,
		Unbound:      unboundZones(zoneFile, bindings),
	}
	if eventManager != nil {
		systemDeps.Events = eventManager.Stats
	}
	system.RegisterRoutes(router, system.NewService(systemDeps, logger))
	registerHealthRoutes(router, engine, auditService)
	openapi.RegisterRoutes(router)

	auditService.Enqueue(audit.WriteEventInput{
		Type:    string(audit.EventSystemStartup),
		Message: fmt.Sprintf("Started with %d zones", len(descriptors)),
		Payload: map[string]any{"zones": len(descriptors), "players": len(players)},
	})

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if ticker != nil {
			ticker.Stop()
		}
		if watcher != nil {
			_ = watcher.Close()
		}
		if eventManager != nil {
			_ = eventManager.Stop(ctx)
		}
		cancelRun()
		select {
		case <-engineDone:
		case <-ctx.Done():
		}
		hub.Close()
		if bridge != nil {
			bridge.Close()
		}
		if history != nil {
			history.Close()
		}
		settingsService.Stop()
		auditService.Stop()
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func discoverPlayers(ctx context.Context, cfg config.Config, options Options, logger *log.Logger) []*discovery.Player {
	passes := cfg.SSDPDiscoveryPasses
	if options.DisableDiscovery {
		passes = 0
	}
	players, err := discovery.DiscoverPlayers(ctx, discovery.Options{
		Passes:       passes,
		PassInterval: config.Millis(cfg.SSDPPassIntervalMs),
		Timeout:      config.Millis(cfg.SSDPDiscoveryTimeoutMs),
		KnownHosts:   cfg.StaticDeviceIPs,
		ProbeTimeout: cfg.SonosTimeout(),
		Logger:       logger,
	})
	if err != nil {
		logger.Printf("DISCOVERY: failed: %v", err)
	}
	return players
}

func startEvents(ctx context.Context, cfg config.Config, driver *sonos.Driver, bindings []zoneBinding, router chi.Router, logger *log.Logger) *events.Manager {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		logger.Printf("UPNP: invalid port %q, events disabled", cfg.Port)
		return nil
	}
	managerConfig := events.DefaultManagerConfig()
	managerConfig.CallbackHost = cfg.UPnPCallbackHost
	managerConfig.SubscriptionTimeout = cfg.UPnPSubscriptionTimeoutSec

	manager := events.NewManager(managerConfig, port, driver, logger)
	events.RegisterCallbackRoutes(router, events.NewCallbackHandler(manager))
	if err := manager.Start(); err != nil {
		logger.Printf("UPNP: events disabled: %v", err)
		return nil
	}

	go func() {
		for _, b := range bindings {
			if err := manager.SubscribeDevice(ctx, b.player.Host, b.player.UUID); err != nil {
				logger.Printf("UPNP: subscribe %s failed: %v", b.descriptor.Name, err)
			}
		}
	}()
	return manager
}

func registerHealthRoutes(router chi.Router, engine *zone.Engine, auditService *audit.Service) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "sonos-multiroom",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"audit":     auditService.IsHealthy(),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		zones, err := engine.Zones(ctx)
		if err != nil {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "reason": err.Error()})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready", "zones": len(zones)})
	}))
}
