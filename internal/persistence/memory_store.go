package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/quest/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of DefinitionStore,
// InstanceStore, and LogStore backed by maps. It is the default for tests
// and single-process deployments that do not need durability.
type InMemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]*api.CompiledDefinition
	instances   map[string]*api.Instance
	log         map[string][]api.LogEntry
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		definitions: make(map[string]*api.CompiledDefinition),
		instances:   make(map[string]*api.Instance),
		log:         make(map[string][]api.LogEntry),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ DefinitionStore = (*InMemoryStore)(nil)

var _ InstanceStore = (*InMemoryStore)(nil)

var _ LogStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveDefinition(def *api.CompiledDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.definitions[def.ID()] = def
	return nil
}

func (s *InMemoryStore) GetDefinition(id string) (*api.CompiledDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, api.ErrDefinitionNotFound
	}
	return def, nil
}

func (s *InMemoryStore) ListDefinitions() ([]*api.CompiledDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.CompiledDefinition, 0, len(s.definitions))
	for _, def := range s.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (s *InMemoryStore) SaveInstance(inst *api.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return fmt.Errorf("instance already exists: %s", inst.ID)
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return api.ErrInstanceNotFound
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Instance
	for _, inst := range s.instances {
		if filter.DefinitionID != "" && inst.DefinitionID != filter.DefinitionID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && inst.Status.Terminal() {
			continue
		}
		result = append(result, inst.Clone())
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemoryStore) Append(ctx context.Context, e api.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log[e.InstanceID] = append(s.log[e.InstanceID], e)
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, instanceID string) ([]api.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]api.LogEntry(nil), s.log[instanceID]...), nil
}

func (s *InMemoryStore) LastSeq(ctx context.Context, instanceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.log[instanceID]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Seq, nil
}
