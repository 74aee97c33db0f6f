// Package deadletter is an optional, swappable SQLite-backed audit
// sink for the runtime's dead letters. The core itself never writes
// to disk, and a system can run without this package entirely; it
// subscribes to the system-event hub like any other reader.
package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/actor/eventbus"
	"github.com/cellgrid/actorsys/internal/log"
)

// Record is one persisted dead letter.
type Record struct {
	ID            string
	Target        actor.Address
	MessageType   string
	Reason        string
	CorrelationID string
	RecordedAt    time.Time
}

// Sink is a SQLite-backed append-only dead-letter audit log.
type Sink struct {
	db *sql.DB
}

// Open creates (if necessary) the database directory, opens the
// SQLite file at path in WAL mode, and applies migrations up to the
// latest version.
func Open(path string) (*Sink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("deadletter: creating directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("deadletter: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("deadletter: migrating %s: %w", path, err)
	}

	return &Sink{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite_migrate.WithInstance(db, &sqlite_migrate.Config{})
	if err != nil {
		return fmt.Errorf("building sqlite migration driver: %w", err)
	}

	source, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return fmt.Errorf("building migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("migrations", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("building migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Record persists one dead letter. ID is generated if empty.
func (s *Sink) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (
			id, target_node, target_kind, target_id, target_path,
			message_type, reason, correlation_id, recorded_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Target.Node, rec.Target.Kind, rec.Target.ID, rec.Target.Path,
		rec.MessageType, rec.Reason, rec.CorrelationID, rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("deadletter: inserting record: %w", err)
	}
	return nil
}

// Count returns the total number of recorded dead letters, for
// operational inspection.
func (s *Sink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("deadletter: counting records: %w", err)
	}
	return n, nil
}

// Recent returns the most recently recorded dead letters, newest
// first, limited to n rows.
func (s *Sink) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_node, target_kind, target_id, target_path,
		       message_type, reason, correlation_id, recorded_at_ns
		FROM dead_letters
		ORDER BY recorded_at_ns DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("deadletter: querying recent records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var recordedAtNs int64
		if err := rows.Scan(&rec.ID, &rec.Target.Node, &rec.Target.Kind, &rec.Target.ID,
			&rec.Target.Path, &rec.MessageType, &rec.Reason, &rec.CorrelationID, &recordedAtNs); err != nil {
			return nil, fmt.Errorf("deadletter: scanning record: %w", err)
		}
		rec.RecordedAt = time.Unix(0, recordedAtNs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}

// SubscribeSystemEvents runs until ctx is done, persisting every
// deadLetter event published to hub. Wired the same way any other
// event-bus subscriber is: this sink has no privileged access, it is
// just another reader of the hub's deadLetter topic.
func (s *Sink) SubscribeSystemEvents(ctx context.Context, hub *eventbus.SystemEvents) error {
	msgs, err := hub.Subscribe(ctx, eventbus.TopicDeadLetter)
	if err != nil {
		return fmt.Errorf("deadletter: subscribing to system events: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var wr eventbus.DeadLetterPayload
				if err := json.Unmarshal(msg.Payload, &wr); err != nil {
					log.WarnS(ctx, "deadletter: failed to decode system event", "err", err)
					msg.Ack()
					continue
				}
				rec := Record{
					Target: actor.Address{
						Node: wr.Node, Kind: wr.Kind, ID: wr.ID, Path: wr.Path,
					},
					MessageType:   wr.MessageType,
					Reason:        wr.Reason,
					CorrelationID: wr.CorrelationID,
					RecordedAt:    time.Now(),
				}
				if err := s.Record(ctx, rec); err != nil {
					log.WarnS(ctx, "deadletter: failed to persist record", "err", err)
				}
				msg.Ack()
			}
		}
	}()

	return nil
}
