package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/quest/pkg/api"
)

// RedisInstanceStore is an InstanceStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id>            => gob-encoded redisInstancePayload
//	<prefix>idx:all              => SET of all instance IDs
//	<prefix>idx:def:<defID>      => SET of instance IDs per definition
//	<prefix>idx:status:<status>  => SET of instance IDs per status
//
// The indexes are always updated on Save/Update, and ListInstances uses
// set membership for filtering.
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ InstanceStore = (*RedisInstanceStore)(nil)

type redisInstancePayload struct {
	ID             string
	DefinitionID   string
	CorrelationKey string
	CurrentStep    int
	Status         string
	LastEventID    string
	AppliedEvents  []string
	Commands       []api.CommandRecord
	FailureReason  string
	CreatedAt      int64
	UpdatedAt      int64
}

// NewRedisInstanceStore creates a RedisInstanceStore.
// prefix is optional but recommended (e.g. "quest:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "quest:"
	}
	return &RedisInstanceStore{client: client, prefix: prefix}
}

func (s *RedisInstanceStore) keyInstance(id string) string { return s.prefix + "inst:" + id }
func (s *RedisInstanceStore) keyAll() string               { return s.prefix + "idx:all" }
func (s *RedisInstanceStore) keyDefinition(id string) string {
	return s.prefix + "idx:def:" + id
}
func (s *RedisInstanceStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

func encodeRedisInstance(inst *api.Instance) ([]byte, error) {
	payload := redisInstancePayload{
		ID:             inst.ID,
		DefinitionID:   inst.DefinitionID,
		CorrelationKey: inst.CorrelationKey,
		CurrentStep:    inst.CurrentStep,
		Status:         string(inst.Status),
		LastEventID:    inst.LastEventID,
		AppliedEvents:  inst.AppliedEvents,
		Commands:       inst.Commands,
		FailureReason:  inst.FailureReason,
		CreatedAt:      inst.CreatedAt.UnixNano(),
		UpdatedAt:      inst.UpdatedAt.UnixNano(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisInstance(data []byte) (*api.Instance, error) {
	if len(data) == 0 {
		return nil, api.ErrInstanceNotFound
	}
	var payload redisInstancePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}
	return &api.Instance{
		ID:             payload.ID,
		DefinitionID:   payload.DefinitionID,
		CorrelationKey: payload.CorrelationKey,
		CurrentStep:    payload.CurrentStep,
		Status:         api.Status(payload.Status),
		LastEventID:    payload.LastEventID,
		AppliedEvents:  payload.AppliedEvents,
		Commands:       payload.Commands,
		FailureReason:  payload.FailureReason,
		CreatedAt:      time.Unix(0, payload.CreatedAt),
		UpdatedAt:      time.Unix(0, payload.UpdatedAt),
	}, nil
}

func (s *RedisInstanceStore) SaveInstance(inst *api.Instance) error {
	return s.write(inst, "")
}

func (s *RedisInstanceStore) UpdateInstance(inst *api.Instance) error {
	ctx := context.Background()

	prev, err := s.client.Get(ctx, s.keyInstance(inst.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return api.ErrInstanceNotFound
	}
	if err != nil {
		return err
	}

	prevInst, err := decodeRedisInstance(prev)
	if err != nil {
		return err
	}
	return s.write(inst, prevInst.Status)
}

// write stores the instance and refreshes the indexes. prevStatus, when
// non-empty, names the status index the instance must leave.
func (s *RedisInstanceStore) write(inst *api.Instance, prevStatus api.Status) error {
	ctx := context.Background()

	data, err := encodeRedisInstance(inst)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyInstance(inst.ID), data, 0)
	pipe.SAdd(ctx, s.keyAll(), inst.ID)
	pipe.SAdd(ctx, s.keyDefinition(inst.DefinitionID), inst.ID)
	if prevStatus != "" && prevStatus != inst.Status {
		pipe.SRem(ctx, s.keyStatus(prevStatus), inst.ID)
	}
	pipe.SAdd(ctx, s.keyStatus(inst.Status), inst.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisInstanceStore) GetInstance(id string) (*api.Instance, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.keyInstance(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, api.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRedisInstance(data)
}

func (s *RedisInstanceStore) ListInstances(filter InstanceFilter) ([]*api.Instance, error) {
	ctx := context.Background()

	ids, err := s.client.SMembers(ctx, s.keyAll()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	var out []*api.Instance
	for _, id := range ids {
		inst, err := s.GetInstance(id)
		if errors.Is(err, api.ErrInstanceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.DefinitionID != "" && inst.DefinitionID != filter.DefinitionID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && inst.Status.Terminal() {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// RedisLogStore stores the quest log as one Redis list per instance
// (<prefix>log:<instanceID>), appended with RPUSH so list order is sequence
// order.
type RedisLogStore struct {
	client *redis.Client
	prefix string
}

var _ LogStore = (*RedisLogStore)(nil)

func NewRedisLogStore(client *redis.Client, prefix string) *RedisLogStore {
	if prefix == "" {
		prefix = "quest:"
	}
	return &RedisLogStore{client: client, prefix: prefix}
}

func (s *RedisLogStore) keyLog(instanceID string) string {
	return s.prefix + "log:" + instanceID
}

type redisLogPayload struct {
	InstanceID  string
	Seq         int64
	PriorStatus string
	EventID     string
	NewStatus   string
	StepIndex   int
	CommandID   string
	Detail      string
	RecordedAt  int64
}

func (s *RedisLogStore) Append(ctx context.Context, e api.LogEntry) error {
	at := e.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}

	payload := redisLogPayload{
		InstanceID:  e.InstanceID,
		Seq:         e.Seq,
		PriorStatus: string(e.PriorStatus),
		EventID:     e.EventID,
		NewStatus:   string(e.NewStatus),
		StepIndex:   e.StepIndex,
		CommandID:   e.CommandID,
		Detail:      e.Detail,
		RecordedAt:  at.UnixNano(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keyLog(e.InstanceID), buf.Bytes()).Err()
}

func (s *RedisLogStore) List(ctx context.Context, instanceID string) ([]api.LogEntry, error) {
	values, err := s.client.LRange(ctx, s.keyLog(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]api.LogEntry, 0, len(values))
	for _, v := range values {
		var payload redisLogPayload
		if err := gob.NewDecoder(bytes.NewReader([]byte(v))).Decode(&payload); err != nil {
			return nil, err
		}
		out = append(out, api.LogEntry{
			InstanceID:  payload.InstanceID,
			Seq:         payload.Seq,
			PriorStatus: api.Status(payload.PriorStatus),
			EventID:     payload.EventID,
			NewStatus:   api.Status(payload.NewStatus),
			StepIndex:   payload.StepIndex,
			CommandID:   payload.CommandID,
			Detail:      payload.Detail,
			RecordedAt:  time.Unix(0, payload.RecordedAt),
		})
	}
	return out, nil
}

func (s *RedisLogStore) LastSeq(ctx context.Context, instanceID string) (int64, error) {
	entries, err := s.List(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Seq, nil
}
