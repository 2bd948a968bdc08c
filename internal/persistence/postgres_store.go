package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/quest/pkg/api"
)

// PostgresInstanceStore is an InstanceStore backed by PostgreSQL.
//
// It expects an *sql.DB using a Postgres driver; the caller imports the
// driver of their choice (lib/pq, pgx stdlib, ...).
type PostgresInstanceStore struct {
	db *sql.DB
}

var _ InstanceStore = (*PostgresInstanceStore)(nil)

func NewPostgresInstanceStore(db *sql.DB) (*PostgresInstanceStore, error) {
	s := &PostgresInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quest_instances (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			correlation_key TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			status TEXT NOT NULL,
			last_event_id TEXT NOT NULL DEFAULT '',
			applied_events BYTEA,
			commands BYTEA,
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_quest_instances_def_status
			ON quest_instances(definition_id, status);`,
	)
	return err
}

func (s *PostgresInstanceStore) SaveInstance(inst *api.Instance) error {
	applied, err := encodeStrings(inst.AppliedEvents)
	if err != nil {
		return err
	}
	commands, err := encodeCommands(inst.Commands)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO quest_instances
			(id, definition_id, correlation_key, current_step, status,
			 last_event_id, applied_events, commands, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inst.ID,
		inst.DefinitionID,
		inst.CorrelationKey,
		inst.CurrentStep,
		string(inst.Status),
		inst.LastEventID,
		applied,
		commands,
		inst.FailureReason,
		inst.CreatedAt.UnixNano(),
		inst.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *PostgresInstanceStore) UpdateInstance(inst *api.Instance) error {
	applied, err := encodeStrings(inst.AppliedEvents)
	if err != nil {
		return err
	}
	commands, err := encodeCommands(inst.Commands)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE quest_instances
		SET definition_id = $1, correlation_key = $2, current_step = $3, status = $4,
			last_event_id = $5, applied_events = $6, commands = $7, failure_reason = $8, updated_at = $9
		WHERE id = $10`,
		inst.DefinitionID,
		inst.CorrelationKey,
		inst.CurrentStep,
		string(inst.Status),
		inst.LastEventID,
		applied,
		commands,
		inst.FailureReason,
		inst.UpdatedAt.UnixNano(),
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrInstanceNotFound
	}
	return nil
}

func (s *PostgresInstanceStore) GetInstance(id string) (*api.Instance, error) {
	row := s.db.QueryRow(`
		SELECT id, definition_id, correlation_key, current_step, status,
			last_event_id, applied_events, commands, failure_reason, created_at, updated_at
		FROM quest_instances
		WHERE id = $1`,
		id,
	)

	inst, err := scanInstance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *PostgresInstanceStore) ListInstances(filter InstanceFilter) ([]*api.Instance, error) {
	query := `
		SELECT id, definition_id, correlation_key, current_step, status,
			last_event_id, applied_events, commands, failure_reason, created_at, updated_at
		FROM quest_instances`
	var args []any
	var clauses []string

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.DefinitionID != "" {
		clauses = append(clauses, "definition_id = "+arg(filter.DefinitionID))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "status IN ("+arg(string(api.StatusRunning))+", "+arg(string(api.StatusCompensating))+")")
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.Instance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// PostgresLogStore stores quest log entries in PostgreSQL.
type PostgresLogStore struct {
	db *sql.DB
}

var _ LogStore = (*PostgresLogStore)(nil)

func NewPostgresLogStore(db *sql.DB) (*PostgresLogStore, error) {
	s := &PostgresLogStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresLogStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quest_log (
			instance_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			prior_status TEXT NOT NULL,
			event_id TEXT NOT NULL DEFAULT '',
			new_status TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			command_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			recorded_at BIGINT NOT NULL,
			PRIMARY KEY (instance_id, seq)
		);`,
	)
	return err
}

func (s *PostgresLogStore) Append(ctx context.Context, e api.LogEntry) error {
	at := e.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quest_log
			(instance_id, seq, prior_status, event_id, new_status, step_index, command_id, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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

func (s *PostgresLogStore) List(ctx context.Context, instanceID string) ([]api.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, seq, prior_status, event_id, new_status, step_index, command_id, detail, recorded_at
		FROM quest_log
		WHERE instance_id = $1
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

func (s *PostgresLogStore) LastSeq(ctx context.Context, instanceID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM quest_log WHERE instance_id = $1`, instanceID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
