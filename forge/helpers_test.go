package forge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// mockLogger is a simple logger that implements runtime.Logger for testing.
type mockLogger struct{}

func (l *mockLogger) Debug(format string, v ...interface{})                   {}
func (l *mockLogger) Info(format string, v ...interface{})                    {}
func (l *mockLogger) Warn(format string, v ...interface{})                    {}
func (l *mockLogger) Error(format string, v ...interface{})                   {}
func (l *mockLogger) WithField(key string, v interface{}) runtime.Logger      { return l }
func (l *mockLogger) WithFields(fields map[string]interface{}) runtime.Logger { return l }
func (l *mockLogger) Fields() map[string]interface{}                          { return nil }

// scriptedRandom returns its draws in order, then zeros.
type scriptedRandom struct {
	draws []int
	calls []int
}

func (s *scriptedRandom) IntN(n int) int {
	s.calls = append(s.calls, n)
	if len(s.draws) == 0 {
		return 0
	}
	d := s.draws[0]
	s.draws = s.draws[1:]
	return d % n
}

func intPtr(v int) *int { return &v }

// testGameDataConfig is a small but complete content set:
//
//	basics (start) ; A -> B -> C, A grants the secondary category, B teaches
//	steel, C turns on auto progression. Quest "fire" asks for lux then vis.
func testGameDataConfig() *GameDataConfig {
	return &GameDataConfig{
		Economy: &EconomyConfig{
			PrimaryCurrency:   "vis",
			PremiumCurrency:   "souls",
			PrimaryCapacity:   50,
			ClickAmount:       1,
			DropChancePercent: intPtr(50),
			BaseMaterials:     []string{"aer", "aqua"},
			AutoIntervalMs:    1000,
			MinAutoIntervalMs: 500,
		},
		Recipes: RecipeCategories{
			{
				Name:         "secondary",
				RequiresFlag: "secondary_crystals",
				Items: []*RecipeItem{
					{Name: "lux", Cost: CostOf("aer", 1, "aqua", 1)},
					{Name: "steel", Cost: CostOf("lux", 2), Locked: true},
				},
			},
		},
		Nodes: []*UnlockNode{
			{ID: "basics", StartUnlocked: true},
			{ID: "A", Cost: CostOf("vis", 10), Rewards: []RewardEffect{SetFlag("secondary_crystals"), UnlockTab("crafting")}},
			{ID: "B", Cost: CostOf("vis", 20), Prerequisites: []string{"A"}, Rewards: []RewardEffect{UnlockRecipe("steel")}},
			{ID: "C", Cost: CostOf("vis", 5), Prerequisites: []string{"B"}, Rewards: []RewardEffect{SetFlag("auto_progression")}},
		},
		Quests: []*QuestLineConfig{
			{
				ID: "fire",
				Stages: []*QuestStageConfig{
					{
						ID:       "collect_lux",
						Requires: QuestRequirement{Resource: "lux", Count: 1},
						Rewards:  &QuestRewards{Resources: CostOf("souls", 1), Flags: []string{"fire_started"}},
					},
					{
						ID:       "offer_vis",
						Requires: QuestRequirement{Resource: "vis", Count: 5},
						Rewards:  &QuestRewards{Nodes: []string{"B"}},
					},
				},
			},
		},
		Upgrades: []*UpgradeConfig{
			{ID: "vis_capacity", Cost: CostOf("vis", 50), Effect: UpgradeEffect{Kind: UpgradeCapacity, Delta: 50, Limit: 150}},
			{ID: "soul_click", Cost: CostOf("souls", 1), Effect: UpgradeEffect{Kind: UpgradeClickAmount, Delta: 1}, MaxLevel: 2},
			{ID: "auto_interval", RequiresFlag: "auto_progression", Effect: UpgradeEffect{Kind: UpgradeAutoInterval, Delta: -250, Limit: 500}},
			{ID: "drop_chance", Cost: CostOf("vis", 10), Effect: UpgradeEffect{Kind: UpgradeDropChance, Delta: 25}},
		},
	}
}

func newTestGameData(t *testing.T) *GameData {
	t.Helper()
	data, problems := NewGameData(testGameDataConfig())
	require.Empty(t, problems)
	return data
}

func newTestController(t *testing.T, save *SaveFile, opts ...ControllerOption) *Controller {
	t.Helper()
	opts = append([]ControllerOption{WithLogger(&mockLogger{}), WithRandom(&scriptedRandom{})}, opts...)
	return NewController(newTestGameData(t), save, opts...)
}

var errVersionConflict = errors.New("storage write rejected due to version check")

// testNakamaModule keeps storage objects in memory with Nakama's version
// semantics and records metric counters. Everything else panics.
type testNakamaModule struct {
	runtime.NakamaModule

	mu       sync.Mutex
	clock    Clock
	storage  map[string]*api.StorageObject
	versions int
	counters map[string]int64

	failRead    error
	failWrite   error
	beforeWrite func()
}

func newTestNakamaModule(clock Clock) *testNakamaModule {
	return &testNakamaModule{
		clock:    clock,
		storage:  make(map[string]*api.StorageObject),
		counters: make(map[string]int64),
	}
}

func storageKey(userID, collection, key string) string {
	return userID + ":" + collection + ":" + key
}

func (m *testNakamaModule) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead != nil {
		return nil, m.failRead
	}
	var result []*api.StorageObject
	for _, r := range reads {
		if object, ok := m.storage[storageKey(r.UserID, r.Collection, r.Key)]; ok {
			result = append(result, object)
		}
	}
	return result, nil
}

func (m *testNakamaModule) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return nil, m.failWrite
	}

	// Check every version before writing anything
	for _, w := range writes {
		existing, ok := m.storage[storageKey(w.UserID, w.Collection, w.Key)]
		switch {
		case w.Version == "":
		case w.Version == "*" && ok:
			return nil, errVersionConflict
		case w.Version != "*" && (!ok || existing.Version != w.Version):
			return nil, errVersionConflict
		}
	}

	var acks []*api.StorageObjectAck
	for _, w := range writes {
		m.versions++
		version := fmt.Sprintf("v%d", m.versions)
		m.storage[storageKey(w.UserID, w.Collection, w.Key)] = &api.StorageObject{
			Collection:      w.Collection,
			Key:             w.Key,
			UserId:          w.UserID,
			Value:           w.Value,
			Version:         version,
			PermissionRead:  int32(w.PermissionRead),
			PermissionWrite: int32(w.PermissionWrite),
			UpdateTime:      timestamppb.New(m.clock.Now()),
		}
		acks = append(acks, &api.StorageObjectAck{
			Collection: w.Collection,
			Key:        w.Key,
			UserId:     w.UserID,
			Version:    version,
		})
	}
	return acks, nil
}

func (m *testNakamaModule) MetricsCounterAdd(name string, tags map[string]string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event, ok := tags["event"]; ok {
		name += ":" + event
	}
	m.counters[name] += delta
}

func (m *testNakamaModule) object(userID string) (*api.StorageObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	object, ok := m.storage[storageKey(userID, saveStorageCollection, userSaveStorageKey)]
	return object, ok
}

func (m *testNakamaModule) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}
