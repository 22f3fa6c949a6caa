package audit

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// Default configuration values
const (
	DefaultRetentionDays   = 30
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
	recordQueueSize        = 256
)

// Service provides audit log management functionality.
type Service struct {
	logger              *log.Logger
	repo                *Repository
	retentionDays       int
	pruneInterval       time.Duration
	queue               chan WriteEventInput
	stopCh              chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new audit service.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	retention := cfg.AuditRetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retention,
		pruneInterval: DefaultPruneInterval,
		queue:         make(chan WriteEventInput, recordQueueSize),
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// RecordEvent writes a new audit event synchronously.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// Enqueue hands an event to the background writer. It never blocks;
// events are dropped when the queue is full.
func (s *Service) Enqueue(input WriteEventInput) bool {
	select {
	case s.queue <- input:
		return true
	default:
		s.logger.Printf("AUDIT: queue full, dropping %s event", input.Type)
		return false
	}
}

// RecordCommand implements zone.CommandRecorder.
func (s *Service) RecordCommand(cmd zone.CommandRecord) {
	input := WriteEventInput{
		Type:    string(EventControlCommand),
		Message: fmt.Sprintf("%s set to %v", cmd.Action, cmd.Value),
		Payload: map[string]any{
			"action": cmd.Action,
			"value":  cmd.Value,
		},
	}
	if cmd.ZoneID != "" {
		zoneID := cmd.ZoneID
		input.Type = string(EventZoneCommand)
		input.ZoneID = &zoneID
		input.Message = fmt.Sprintf("%s %s set to %v", cmd.ZoneName, cmd.Action, cmd.Value)
		input.Payload["zone_name"] = cmd.ZoneName
	}
	s.Enqueue(input)
}

// QueryEvents retrieves events with filters and pagination.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()
	return events, total, filters.Offset+len(events) < total, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// Start launches the background writer and the prune job.
func (s *Service) Start() {
	s.logger.Printf("AUDIT: starting (prune interval: %v, retention: %d days)",
		s.pruneInterval, s.retentionDays)

	s.wg.Add(2)
	go s.runWriter()
	go s.runPruneLoop()
}

// Stop drains queued events and stops the background goroutines.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Printf("AUDIT: stopped")
}

func (s *Service) runWriter() {
	defer s.wg.Done()

	for {
		select {
		case input := <-s.queue:
			s.write(input)
		case <-s.stopCh:
			for {
				select {
				case input := <-s.queue:
					s.write(input)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(input WriteEventInput) {
	if _, err := s.RecordEvent(input); err != nil {
		s.logger.Printf("AUDIT: %v", err)
	}
}

func (s *Service) runPruneLoop() {
	defer s.wg.Done()

	s.pruneAndLog()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pruneAndLog()
		}
	}
}

func (s *Service) pruneAndLog() {
	if count, err := s.Prune(); err != nil {
		s.logger.Printf("AUDIT: error pruning events: %v", err)
	} else if count > 0 {
		s.logger.Printf("AUDIT: pruned %d events", count)
	}
}

// Prune deletes events past the retention window and returns the count.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.PruneOldEvents(s.retentionDays)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
