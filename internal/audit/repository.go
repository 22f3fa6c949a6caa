package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// AuditEvent represents a single audit event.
type AuditEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	ZoneID    *string        `json:"zone_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new audit event.
type WriteEventInput struct {
	Type      string         `json:"type"`
	Level     *EventLevel    `json:"level,omitempty"`
	RequestID *string        `json:"request_id,omitempty"`
	ZoneID    *string        `json:"zone_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type      *string     `json:"type,omitempty"`
	Level     *EventLevel `json:"level,omitempty"`
	StartDate *string     `json:"start_date,omitempty"` // ISO 8601 format
	EndDate   *string     `json:"end_date,omitempty"`   // ISO 8601 format
	RequestID *string     `json:"request_id,omitempty"`
	ZoneID    *string     `json:"zone_id,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for audit events.
type Repository struct {
	reader *sql.DB // For SELECT queries
	writer *sql.DB // For INSERT/UPDATE/DELETE
	now    func() time.Time
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), now: time.Now}
}

const eventColumns = `event_id, timestamp, type, level, request_id, zone_id, message, payload`

// TimestampLayout is the stored timestamp format. Fixed width keeps
// lexical and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// InsertEvent writes a new audit event and returns it as stored.
func (r *Repository) InsertEvent(input WriteEventInput) (*AuditEvent, error) {
	eventID := uuid.New().String()
	timestamp := r.now().UTC().Format(TimestampLayout)

	level := EventLevelInfo
	if input.Level != nil {
		level = *input.Level
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO audit_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, timestamp, input.Type, string(level), input.RequestID, input.ZoneID, input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	return r.getEvent(r.writer, eventID)
}

// GetEvent retrieves a single event by ID.
// Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*AuditEvent, error) {
	return r.getEvent(r.reader, eventID)
}

func (r *Repository) getEvent(conn *sql.DB, eventID string) (*AuditEvent, error) {
	row := conn.QueryRow(`
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE event_id = ?
	`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents retrieves events matching filters, newest first.
// Returns events, total count, and error.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM audit_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		` + whereClause + `
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.reader.Query(query, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// Prune deletes events older than the cutoff time and returns the count.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`
		DELETE FROM audit_events
		WHERE timestamp < ?
	`, cutoff.UTC().Format(TimestampLayout))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// PruneOldEvents deletes events older than retentionDays.
func (r *Repository) PruneOldEvents(retentionDays int) (int64, error) {
	return r.Prune(r.now().UTC().AddDate(0, 0, -retentionDays))
}

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filters.Type)
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.RequestID != nil {
		conditions = append(conditions, "request_id = ?")
		args = append(args, *filters.RequestID)
	}
	if filters.ZoneID != nil {
		conditions = append(conditions, "zone_id = ?")
		args = append(args, *filters.ZoneID)
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filters.EndDate)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	var event AuditEvent
	var timestamp, level, payloadJSON string
	var requestID, zoneID sql.NullString

	if err := row.Scan(
		&event.EventID,
		&timestamp,
		&event.Type,
		&level,
		&requestID,
		&zoneID,
		&event.Message,
		&payloadJSON,
	); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(TimestampLayout, timestamp)
	if err != nil {
		parsed, _ = time.Parse("2006-01-02 15:04:05", timestamp)
	}
	event.Timestamp = parsed
	event.Level = EventLevel(level)
	if requestID.Valid {
		event.RequestID = &requestID.String
	}
	if zoneID.Valid {
		event.ZoneID = &zoneID.String
	}
	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}

	return &event, nil
}
