package app

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/models"
)

// kvStore is a TreeStore stub backing only the system KV methods.
type kvStore struct {
	kv map[string]string
}

func newKVStore() *kvStore {
	return &kvStore{kv: make(map[string]string)}
}

func (s *kvStore) GetTree(_ context.Context, treeID string) (*models.RiskTree, error) {
	return nil, fmt.Errorf("tree '%s' not found", treeID)
}

func (s *kvStore) SaveTree(_ context.Context, _ *models.RiskTree) error { return nil }
func (s *kvStore) DeleteTree(_ context.Context, _ string) error         { return nil }

func (s *kvStore) ListTrees(_ context.Context) ([]*models.RiskTree, error) {
	return nil, nil
}

func (s *kvStore) GetSystemKV(_ context.Context, key string) (string, error) {
	value, ok := s.kv[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found", key)
	}
	return value, nil
}

func (s *kvStore) SetSystemKV(_ context.Context, key, value string) error {
	s.kv[key] = value
	return nil
}

func (s *kvStore) Close() error { return nil }

func TestLoadOrInitSeeds_FirstRunPersistsDefaults(t *testing.T) {
	store := newKVStore()

	seeds := loadOrInitSeeds(context.Background(), store, common.NewSilentLogger())
	if seeds != models.DefaultSeeds() {
		t.Errorf("first run seeds = %+v, want built-in defaults", seeds)
	}

	raw, ok := store.kv[defaultSeedsKey]
	if !ok {
		t.Fatal("first run should persist the seed triple")
	}
	var stored models.SeedTriple
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored seed triple is not valid JSON: %v", err)
	}
	if stored != models.DefaultSeeds() {
		t.Errorf("persisted seeds = %+v, want built-in defaults", stored)
	}
}

func TestLoadOrInitSeeds_ExistingTripleWins(t *testing.T) {
	store := newKVStore()
	pinned := models.SeedTriple{Occurrence: 11, Magnitude: 22, Stream: 33}
	encoded, _ := json.Marshal(pinned)
	store.kv[defaultSeedsKey] = string(encoded)

	seeds := loadOrInitSeeds(context.Background(), store, common.NewSilentLogger())
	if seeds != pinned {
		t.Errorf("seeds = %+v, want the persisted triple %+v", seeds, pinned)
	}
	if store.kv[defaultSeedsKey] != string(encoded) {
		t.Error("an existing triple must not be rewritten")
	}
}

func TestLoadOrInitSeeds_CorruptValueRewritten(t *testing.T) {
	store := newKVStore()
	store.kv[defaultSeedsKey] = "{not json"

	seeds := loadOrInitSeeds(context.Background(), store, common.NewSilentLogger())
	if seeds != models.DefaultSeeds() {
		t.Errorf("seeds = %+v, want built-in defaults after corrupt value", seeds)
	}

	var stored models.SeedTriple
	if err := json.Unmarshal([]byte(store.kv[defaultSeedsKey]), &stored); err != nil {
		t.Fatalf("corrupt value should be replaced with valid JSON: %v", err)
	}
	if stored != models.DefaultSeeds() {
		t.Errorf("rewritten seeds = %+v, want built-in defaults", stored)
	}
}
