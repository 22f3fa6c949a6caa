package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	NodeEnv                  string
	AllowTestMode            bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int
	AuditRetentionDays       int

	SSDPDiscoveryTimeoutMs int
	SSDPDiscoveryPasses    int
	SSDPPassIntervalMs     int
	StaticDeviceIPs        []string
	SonosTimeoutMs         int

	// Zone file and hot reload
	ZonesConfigPath  string
	ZonesConfigWatch bool

	// Engine timing
	SyncSchedule           string
	RemoteVolumeDebounceMs int
	PowerSettleMs          int
	VolumeSettleMs         int
	UICorrectionMs         int

	// UPnP Event Subscription settings
	UPnPEventsEnabled          bool
	UPnPSubscriptionTimeoutSec int
	UPnPCallbackHost           string

	MQTT   MQTTConfig
	Influx InfluxConfig
}

// MQTTConfig configures the MQTT control-surface bridge.
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// InfluxConfig configures zone state history export.
type InfluxConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                     envString("HOST", "0.0.0.0"),
		Port:                     envString("PORT", "9000"),
		SQLiteDBPath:             envString("SQLITE_DB_PATH", "./data/sonos-multiroom.db"),
		NodeEnv:                  envString("NODE_ENV", "development"),
		AllowTestMode:            envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),
		AuditRetentionDays:       envInt("AUDIT_RETENTION_DAYS", 30),

		SSDPDiscoveryTimeoutMs: envInt("SSDP_DISCOVERY_TIMEOUT_MS", 5000),
		SSDPDiscoveryPasses:    envInt("SSDP_DISCOVERY_PASSES", 3),
		SSDPPassIntervalMs:     envInt("SSDP_PASS_INTERVAL_MS", 2000),
		StaticDeviceIPs:        envCSV("STATIC_DEVICE_IPS"),
		SonosTimeoutMs:         envInt("SONOS_TIMEOUT_MS", 5000),

		ZonesConfigPath:  envString("ZONES_CONFIG_PATH", "./zones.yaml"),
		ZonesConfigWatch: envBool("ZONES_CONFIG_WATCH", true),

		SyncSchedule:           envString("SYNC_SCHEDULE", "@every 30s"),
		RemoteVolumeDebounceMs: envInt("REMOTE_VOLUME_DEBOUNCE_MS", 2000),
		PowerSettleMs:          envInt("POWER_SETTLE_MS", 500),
		VolumeSettleMs:         envInt("VOLUME_SETTLE_MS", 250),
		UICorrectionMs:         envInt("UI_CORRECTION_MS", 250),

		UPnPEventsEnabled:          envBool("UPNP_EVENTS_ENABLED", true),
		UPnPSubscriptionTimeoutSec: envInt("UPNP_SUBSCRIPTION_TIMEOUT", 3600),
		UPnPCallbackHost:           envString("UPNP_CALLBACK_HOST", ""),

		MQTT: MQTTConfig{
			Enabled:     envBool("MQTT_ENABLED", false),
			Broker:      envString("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    envString("MQTT_CLIENT_ID", "sonos-multiroom"),
			Username:    envString("MQTT_USERNAME", ""),
			Password:    envString("MQTT_PASSWORD", ""),
			TopicPrefix: envString("MQTT_TOPIC_PREFIX", "sonos"),
		},
		Influx: InfluxConfig{
			Enabled: envBool("INFLUX_ENABLED", false),
			URL:     envString("INFLUX_URL", "http://localhost:8086"),
			Token:   envString("INFLUX_TOKEN", ""),
			Org:     envString("INFLUX_ORG", ""),
			Bucket:  envString("INFLUX_BUCKET", "sonos"),
		},
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.Influx.Enabled && (cfg.Influx.Token == "" || cfg.Influx.Org == "") {
		return Config{}, fmt.Errorf("INFLUX_TOKEN and INFLUX_ORG are required when INFLUX_ENABLED is true")
	}

	return cfg, nil
}

// SonosTimeout is the per-call device timeout.
func (c Config) SonosTimeout() time.Duration {
	return time.Duration(c.SonosTimeoutMs) * time.Millisecond
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
