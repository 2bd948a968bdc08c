package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/quest/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quest_instances (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			correlation_key TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			status TEXT NOT NULL,
			last_event_id TEXT NOT NULL DEFAULT '',
			applied_events BLOB,
			commands BLOB,
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_quest_instances_def_status
			ON quest_instances(definition_id, status);`,
	)
	return err
}

func (s *SQLiteInstanceStore) SaveInstance(inst *api.Instance) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteInstanceStore) UpdateInstance(inst *api.Instance) error {
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
		SET definition_id = ?, correlation_key = ?, current_step = ?, status = ?,
			last_event_id = ?, applied_events = ?, commands = ?, failure_reason = ?, updated_at = ?
		WHERE id = ?`,
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

func (s *SQLiteInstanceStore) GetInstance(id string) (*api.Instance, error) {
	row := s.db.QueryRow(`
		SELECT id, definition_id, correlation_key, current_step, status,
			last_event_id, applied_events, commands, failure_reason, created_at, updated_at
		FROM quest_instances
		WHERE id = ?`,
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

func (s *SQLiteInstanceStore) ListInstances(filter InstanceFilter) ([]*api.Instance, error) {
	query := `
		SELECT id, definition_id, correlation_key, current_step, status,
			last_event_id, applied_events, commands, failure_reason, created_at, updated_at
		FROM quest_instances`
	var args []any
	var clauses []string

	if filter.DefinitionID != "" {
		clauses = append(clauses, "definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "status IN (?, ?)")
		args = append(args, string(api.StatusRunning), string(api.StatusCompensating))
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

// scanInstance decodes one quest_instances row; the column order matches the
// SELECT lists above.
func scanInstance(scan func(dest ...any) error) (*api.Instance, error) {
	var inst api.Instance
	var statusStr string
	var applied, commands []byte
	var createdAt, updatedAt int64

	if err := scan(
		&inst.ID,
		&inst.DefinitionID,
		&inst.CorrelationKey,
		&inst.CurrentStep,
		&statusStr,
		&inst.LastEventID,
		&applied,
		&commands,
		&inst.FailureReason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)
	inst.CreatedAt = time.Unix(0, createdAt)
	inst.UpdatedAt = time.Unix(0, updatedAt)

	appliedEvents, err := decodeStrings(applied)
	if err != nil {
		return nil, err
	}
	inst.AppliedEvents = appliedEvents

	cmds, err := decodeCommands(commands)
	if err != nil {
		return nil, err
	}
	inst.Commands = cmds

	return &inst, nil
}
