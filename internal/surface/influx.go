package surface

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

const (
	influxConnectTimeout = 10 * time.Second
	influxBatchSize      = 100
	influxFlushMs        = 5000

	measurementZone    = "zone_state"
	measurementControl = "control_state"
)

// ErrInfluxConnect is returned when the InfluxDB server cannot be reached.
var ErrInfluxConnect = errors.New("influxdb connection failed")

// InfluxRecorder writes zone and control snapshots as time series points.
// Writes are batched and never block the caller.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *log.Logger
	now      func() time.Time
	drained  chan struct{}
}

// ConnectInflux pings the server and opens a batching write API.
func ConnectInflux(cfg config.InfluxConfig, logger *log.Logger) (*InfluxRecorder, error) {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(influxBatchSize).
			SetFlushInterval(influxFlushMs),
	)

	ctx, cancel := context.WithTimeout(context.Background(), influxConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrInfluxConnect, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrInfluxConnect)
	}

	if logger == nil {
		logger = log.Default()
	}
	r := &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
		now:      time.Now,
		drained:  make(chan struct{}),
	}
	// Errors must be taken before Close can run; the client closes it.
	go r.logWriteErrors(r.writeAPI.Errors())

	logger.Printf("INFLUX: writing to %s (org %s, bucket %s)", cfg.URL, cfg.Org, cfg.Bucket)
	return r, nil
}

func (r *InfluxRecorder) logWriteErrors(errs <-chan error) {
	defer close(r.drained)
	for err := range errs {
		r.logger.Printf("INFLUX: write failed: %v", err)
	}
}

// RecordZone writes one zone_state point.
func (r *InfluxRecorder) RecordZone(snap zone.Snapshot) {
	r.writeAPI.WritePoint(influxdb2.NewPoint(
		measurementZone,
		map[string]string{"zone_id": snap.ZoneID, "zone_name": snap.Name},
		map[string]any{
			"power":       snap.Power,
			"volume":      snap.Volume,
			"mute":        snap.Mute,
			"coordinator": snap.Coordinator,
		},
		r.now(),
	))
}

// RecordGlobal writes one control_state point.
func (r *InfluxRecorder) RecordGlobal(snap zone.GlobalSnapshot) {
	r.writeAPI.WritePoint(influxdb2.NewPoint(
		measurementControl,
		nil,
		map[string]any{
			"any_powered":            snap.AnyPowered,
			"any_muted":              snap.AnyMuted,
			"remote_volume_override": snap.RemoteVolumeOverride,
			"remote_auto_group":      snap.RemoteAutoGroup,
		},
		r.now(),
	))
}

// Flush forces pending points out.
func (r *InfluxRecorder) Flush() {
	r.writeAPI.Flush()
}

// Close flushes pending points, releases the client and waits for the
// error drain to finish.
func (r *InfluxRecorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
	<-r.drained
}
