package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/quest/pkg/api"
)

// SQLiteLogStore stores quest log entries in SQLite.
type SQLiteLogStore struct {
	db *sql.DB
}

var _ LogStore = (*SQLiteLogStore)(nil)

func NewSQLiteLogStore(db *sql.DB) (*SQLiteLogStore, error) {
	s := &SQLiteLogStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteLogStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quest_log (
			instance_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			prior_status TEXT NOT NULL,
			event_id TEXT NOT NULL DEFAULT '',
			new_status TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			command_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (instance_id, seq)
		);`,
	)
	return err
}

func (s *SQLiteLogStore) Append(ctx context.Context, e api.LogEntry) error {
	at := e.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quest_log
			(instance_id, seq, prior_status, event_id, new_status, step_index, command_id, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.InstanceID,
		e.Seq,
		string(e.PriorStatus),
		e.EventID,
		string(e.NewStatus),
		e.StepIndex,
		e.CommandID,
		e.Detail,
		at.UnixNano(),
	)
	return err
}

func (s *SQLiteLogStore) List(ctx context.Context, instanceID string) ([]api.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, seq, prior_status, event_id, new_status, step_index, command_id, detail, recorded_at
		FROM quest_log
		WHERE instance_id = ?
		ORDER BY seq ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.LogEntry
	for rows.Next() {
		var (
			e        api.LogEntry
			prior    string
			status   string
			recorded int64
		)
		if err := rows.Scan(&e.InstanceID, &e.Seq, &prior, &e.EventID, &status, &e.StepIndex, &e.CommandID, &e.Detail, &recorded); err != nil {
			return nil, err
		}
		e.PriorStatus = api.Status(prior)
		e.NewStatus = api.Status(status)
		e.RecordedAt = time.Unix(0, recorded)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteLogStore) LastSeq(ctx context.Context, instanceID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM quest_log WHERE instance_id = ?`, instanceID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
