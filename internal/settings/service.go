package settings

import (
	"database/sql"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// Setting keys for the persisted global toggles.
const (
	KeyRemoteVolumeOverride = "remote_volume_override"
	KeyRemoteAutoGroup      = "remote_auto_group"
)

// ControlSettings are the global toggles that survive restarts.
type ControlSettings struct {
	RemoteVolumeOverride bool      `json:"remote_volume_override"`
	RemoteAutoGroup      bool      `json:"remote_auto_group"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service persists control settings.
type Service struct {
	reader *sql.DB // For SELECT queries
	writer *sql.DB // For INSERT/UPDATE/DELETE
	logger *log.Logger

	mu      sync.Mutex
	pending *ControlSettings
	last    *ControlSettings
	wake    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates a new settings service.
func NewService(dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		reader: dbPair.Reader(),
		writer: dbPair.Writer(),
		logger: logger,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// ControlSettings returns the persisted toggles. Keys never written fall
// back to defaults.
func (s *Service) ControlSettings(defaults ControlSettings) (ControlSettings, error) {
	out := defaults

	rows, err := s.reader.Query(`
		SELECT key, value, updated_at
		FROM settings
		WHERE key IN (?, ?)
	`, KeyRemoteVolumeOverride, KeyRemoteAutoGroup)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value, updatedAt string
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return out, err
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			s.logger.Printf("SETTINGS: ignoring malformed %s=%q", key, value)
			continue
		}
		switch key {
		case KeyRemoteVolumeOverride:
			out.RemoteVolumeOverride = enabled
		case KeyRemoteAutoGroup:
			out.RemoteAutoGroup = enabled
		}
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil && ts.After(out.UpdatedAt) {
			out.UpdatedAt = ts
		}
	}

	return out, rows.Err()
}

// SaveControlSettings writes both toggles.
func (s *Service) SaveControlSettings(settings ControlSettings) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range map[string]bool{
		KeyRemoteVolumeOverride: settings.RemoteVolumeOverride,
		KeyRemoteAutoGroup:      settings.RemoteAutoGroup,
	} {
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, key, strconv.FormatBool(value), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ObserveGlobal queues the toggles from an aggregate snapshot for
// persistence. It is safe to call from the engine loop; it never blocks
// and coalesces bursts into the latest value.
func (s *Service) ObserveGlobal(snap zone.GlobalSnapshot) {
	next := ControlSettings{
		RemoteVolumeOverride: snap.RemoteVolumeOverride,
		RemoteAutoGroup:      snap.RemoteAutoGroup,
	}

	s.mu.Lock()
	if s.last != nil && sameToggles(*s.last, next) {
		s.mu.Unlock()
		return
	}
	s.pending = &next
	s.last = &next
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the persistence goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop flushes any queued toggles and waits for the goroutine.
func (s *Service) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

func (s *Service) flush() {
	s.mu.Lock()
	next := s.pending
	s.pending = nil
	s.mu.Unlock()

	if next == nil {
		return
	}
	if err := s.SaveControlSettings(*next); err != nil {
		s.logger.Printf("SETTINGS: failed to persist control toggles: %v", err)
	}
}

// Seed records the toggles the engine starts with so the first snapshot
// carrying the same values is not written again.
func (s *Service) Seed(settings ControlSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeded := settings
	s.last = &seeded
}

func sameToggles(a, b ControlSettings) bool {
	return a.RemoteVolumeOverride == b.RemoteVolumeOverride && a.RemoteAutoGroup == b.RemoteAutoGroup
}
