package zone

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// DefaultSyncSchedule is the periodic resync schedule.
const DefaultSyncSchedule = "@every 30s"

// Syncer accepts sync requests.
type Syncer interface {
	RequestSync(reason string) error
}

// SyncTicker requests a GlobalSync on a cron schedule. Requests that
// arrive while commands are pending are dropped by the engine, so the
// ticker never piles up work.
type SyncTicker struct {
	logger *log.Logger
	syncer Syncer
	spec   string
	cron   *cron.Cron
}

// NewSyncTicker parses spec, which accepts five-field expressions and
// descriptors such as "@every 30s".
func NewSyncTicker(logger *log.Logger, syncer Syncer, spec string) (*SyncTicker, error) {
	if logger == nil {
		logger = log.Default()
	}
	if spec == "" {
		spec = DefaultSyncSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}

	t := &SyncTicker{
		logger: logger,
		syncer: syncer,
		spec:   spec,
		cron:   cron.New(cron.WithParser(parser)),
	}
	if _, err := t.cron.AddFunc(spec, t.tick); err != nil {
		return nil, fmt.Errorf("failed to schedule sync: %w", err)
	}
	return t, nil
}

// Start begins the schedule.
func (t *SyncTicker) Start() {
	t.logger.Printf("SYNC: periodic sync scheduled %s", t.spec)
	t.cron.Start()
}

// Stop halts the schedule and waits for a running tick.
func (t *SyncTicker) Stop() {
	<-t.cron.Stop().Done()
	t.logger.Printf("SYNC: periodic sync stopped")
}

func (t *SyncTicker) tick() {
	if err := t.syncer.RequestSync("periodic"); err != nil {
		t.logger.Printf("SYNC: periodic request failed: %v", err)
	}
}
