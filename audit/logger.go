// Package audit records instance lifecycle actions in an append-only table.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventType represents the type of audit event
type EventType string

const (
	EventInstanceCreated EventType = "instance_created"
	EventInstanceRenamed EventType = "instance_renamed"
	EventInstanceDeleted EventType = "instance_deleted"
	EventInstanceStarted EventType = "instance_started"
	EventInstanceStopped EventType = "instance_stopped"
	EventCommandSent     EventType = "command_sent"
	EventRedisStarted    EventType = "redis_started"
	EventRedisStopped    EventType = "redis_stopped"
)

// AuditEvent represents an audit log entry in the database
type AuditEvent struct {
	ID         string `db:"id" json:"id"`
	EventType  string `db:"event_type" json:"eventType"`
	Timestamp  int64  `db:"timestamp" json:"timestamp"`
	InstanceID string `db:"instance_id" json:"instanceId"` // empty for daemon-level events
	Detail     string `db:"detail" json:"detail"`
}

// Logger handles audit logging for lifecycle actions
type Logger struct {
	db *sqlx.DB
}

// NewLogger creates a new audit logger instance
func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{
		db: db,
	}, nil
}

// DBInit initializes the audit events database table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		instance_id TEXT,
		detail TEXT
	)
	`)
	if err != nil {
		return err
	}

	// Create indexes for common queries
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_instance_id ON audit_events(instance_id)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type)`)
	return err
}

// Log inserts a lifecycle event.
func (l *Logger) Log(eventType EventType, instanceID, detail string) error {
	_, err := l.db.Exec(`
		INSERT INTO audit_events (id, event_type, timestamp, instance_id, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(),
		string(eventType),
		time.Now().UTC().Unix(),
		instanceID,
		detail,
	)
	return err
}

// GetEventsByInstance retrieves audit events for a specific instance
func (l *Logger) GetEventsByInstance(instanceID string, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events WHERE instance_id = $1 ORDER BY timestamp DESC LIMIT $2",
		instanceID, limit)
	return events, err
}

// GetEventsByType retrieves audit events of a specific type
func (l *Logger) GetEventsByType(eventType EventType, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events WHERE event_type = $1 ORDER BY timestamp DESC LIMIT $2",
		string(eventType), limit)
	return events, err
}

// GetRecentEvents retrieves the most recent audit events
func (l *Logger) GetRecentEvents(limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events ORDER BY timestamp DESC LIMIT $1",
		limit)
	return events, err
}

// DeleteOldEvents deletes audit events older than the specified duration
func (l *Logger) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := l.db.Exec("DELETE FROM audit_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
