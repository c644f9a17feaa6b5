package forge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

func newTestForge(t *testing.T, config NakamaForgeConfig) (*NakamaForge, *testNakamaModule, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	host := NewNakamaForge(newTestGameData(t), config, NakamaMetricsPublisher{})
	host.SetClock(clock)
	return host, newTestNakamaModule(clock), clock
}

func storedSaveOf(t *testing.T, nk *testNakamaModule, userID string) *SaveFile {
	t.Helper()
	object, ok := nk.object(userID)
	require.True(t, ok, "no save stored for %s", userID)
	save, err := DecodeSave([]byte(object.Value), "vis")
	require.NoError(t, err)
	return save
}

func runtimeCode(t *testing.T, err error) int {
	t.Helper()
	var rerr *runtime.Error
	require.ErrorAs(t, err, &rerr)
	return rerr.Code
}

func TestNakamaForge_StateCreatesNewGame(t *testing.T) {
	host, nk, clock := newTestForge(t, NakamaForgeConfig{})
	ctx := context.Background()

	view, err := host.State(ctx, &mockLogger{}, nk, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "vis", view.Resources[0].ID)
	assert.NotEmpty(t, view.SaveID)

	object, ok := nk.object(testUserID)
	require.True(t, ok)
	assert.Equal(t, int32(runtime.STORAGE_PERMISSION_OWNER_READ), object.PermissionRead)
	assert.Equal(t, int32(runtime.STORAGE_PERMISSION_NO_WRITE), object.PermissionWrite)

	save := storedSaveOf(t, nk, testUserID)
	assert.Equal(t, view.SaveID, save.SaveID)
	assert.Equal(t, clock.Now().UnixMilli(), save.LastTickMs)

	// The save id is stable across requests
	again, err := host.State(ctx, &mockLogger{}, nk, testUserID)
	require.NoError(t, err)
	assert.Equal(t, view.SaveID, again.SaveID)
}

func TestNakamaForge_ConjurePersistsAndPublishes(t *testing.T) {
	host, nk, _ := newTestForge(t, NakamaForgeConfig{})
	ctx := context.Background()

	results, view, err := host.Conjure(ctx, &mockLogger{}, nk, testUserID, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, uint64(3), view.Progress.TotalClicks)

	save := storedSaveOf(t, nk, testUserID)
	assert.Equal(t, uint64(3), save.Resources["vis"])
	assert.Equal(t, uint64(3), save.Progress.TotalClicks)

	assert.Equal(t, int64(3), nk.counter("visforge_events:"+EventConjured))
	assert.Equal(t, int64(3), nk.counter("visforge_primary_earned"))

	// A count below one is a single click
	results, _, err = host.Conjure(ctx, &mockLogger{}, nk, testUserID, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestNakamaForge_ConjureLimits(t *testing.T) {
	host, nk, clock := newTestForge(t, NakamaForgeConfig{ConjureRate: 1, ConjureBurst: 3, MaxConjureBatch: 5})
	ctx := context.Background()

	_, _, err := host.Conjure(ctx, &mockLogger{}, nk, testUserID, 6)
	require.Error(t, err)
	assert.Equal(t, INVALID_ARGUMENT_ERROR_CODE, runtimeCode(t, err))

	_, _, err = host.Conjure(ctx, &mockLogger{}, nk, testUserID, 3)
	require.NoError(t, err)

	_, _, err = host.Conjure(ctx, &mockLogger{}, nk, testUserID, 1)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, RESOURCE_EXHAUSTED_ERROR_CODE, runtimeCode(t, err))
	assert.Equal(t, uint64(3), storedSaveOf(t, nk, testUserID).Progress.TotalClicks)

	// Other users have their own allowance
	_, _, err = host.Conjure(ctx, &mockLogger{}, nk, "user-2", 3)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, _, err = host.Conjure(ctx, &mockLogger{}, nk, testUserID, 2)
	require.NoError(t, err)
}

func TestNakamaForge_UserLocksAreReleased(t *testing.T) {
	host, nk, _ := newTestForge(t, NakamaForgeConfig{ConjureBurst: 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := host.Conjure(ctx, &mockLogger{}, nk, testUserID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(10), storedSaveOf(t, nk, testUserID).Progress.TotalClicks)
	host.userLocksMu.Lock()
	assert.Empty(t, host.userLocks)
	host.userLocksMu.Unlock()
}

func TestNakamaForge_IdleLimitersAreSwept(t *testing.T) {
	host, _, clock := newTestForge(t, NakamaForgeConfig{ConjureRate: 1, ConjureBurst: 3})

	require.True(t, host.limiter("busy").AllowN(clock.Now(), 3))
	for i := 1; i < limiterSweepSize; i++ {
		host.limiter(fmt.Sprintf("idle-%d", i))
	}
	assert.Len(t, host.limiters, limiterSweepSize)

	host.limiter("late")
	assert.Len(t, host.limiters, 2)
	assert.Contains(t, host.limiters, "busy")
	assert.False(t, host.limiter("busy").AllowN(clock.Now(), 1), "a drained allowance survives the sweep")
}

func TestNakamaForge_FailedActionWritesNothing(t *testing.T) {
	host, nk, _ := newTestForge(t, NakamaForgeConfig{})
	ctx := context.Background()

	_, err := host.Craft(ctx, &mockLogger{}, nk, testUserID, "secondary", "lux")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCategoryLocked))
	_, ok := nk.object(testUserID)
	assert.False(t, ok)

	_, _, err = host.Unlock(ctx, &mockLogger{}, nk, testUserID, "A")
	assert.True(t, errors.Is(err, ErrInsufficientResources))
	assert.Zero(t, nk.counter("visforge_events:"+EventNodeUnlocked))
}

func TestNakamaForge_ProgressionThroughHost(t *testing.T) {
	host, nk, clock := newTestForge(t, NakamaForgeConfig{ConjureBurst: 100, MaxConjureBatch: 20})
	ctx := context.Background()
	logger := &mockLogger{}

	for i := 0; i < 2; i++ {
		_, _, err := host.Conjure(ctx, logger, nk, testUserID, 20)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	outcome, view, err := host.Unlock(ctx, logger, nk, testUserID, "A")
	require.NoError(t, err)
	assert.Equal(t, "A", outcome.NodeID)
	assert.Contains(t, view.Flags, "secondary_crystals")
	assert.Equal(t, int64(1), nk.counter("visforge_events:"+EventNodeUnlocked))

	progress, _, err := host.AdvanceQuest(ctx, logger, nk, testUserID, "fire")
	require.NoError(t, err)
	assert.False(t, progress.Advanced)

	_, _, err = host.PurchaseUpgrade(ctx, logger, nk, testUserID, "drop_chance")
	require.NoError(t, err)

	save := storedSaveOf(t, nk, testUserID)
	assert.Equal(t, []string{"basics", "A"}, save.UnlockedNodes)
	assert.Equal(t, 1, save.Upgrades["drop_chance"])
	assert.Equal(t, 75, *save.DropChance)
	assert.Equal(t, uint64(20), save.Resources["vis"])
}

func TestNakamaForge_TickIsClampedToWallTime(t *testing.T) {
	host, nk, clock := newTestForge(t, NakamaForgeConfig{MaxTickMs: 4000})
	ctx := context.Background()
	logger := &mockLogger{}

	store := NewNakamaSaveStore(logger, nk, "vis")
	require.NoError(t, store.Save(ctx, testUserID, &SaveFile{Version: SaveVersion, Flags: map[string]bool{"auto_progression": true}}))

	// No tick was recorded yet, so the object time is the reference
	clock.Advance(3 * time.Second)
	earns, view, err := host.Tick(ctx, logger, nk, testUserID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, earns)
	assert.Equal(t, uint64(3), view.Resources[0].Count)

	// Nothing has elapsed since that tick
	earns, _, err = host.Tick(ctx, logger, nk, testUserID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, earns)

	// Other actions do not move the tick reference
	clock.Advance(10 * time.Second)
	_, _, err = host.Conjure(ctx, logger, nk, testUserID, 1)
	require.NoError(t, err)
	earns, _, err = host.Tick(ctx, logger, nk, testUserID, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, earns, "clamped to the configured maximum")

	clock.Advance(1500 * time.Millisecond)
	earns, _, err = host.Tick(ctx, logger, nk, testUserID, 1500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, earns)
	assert.Equal(t, int64(500), storedSaveOf(t, nk, testUserID).Auto.TimerMs)

	_, _, err = host.Tick(ctx, logger, nk, testUserID, -time.Second)
	assert.Equal(t, INVALID_ARGUMENT_ERROR_CODE, runtimeCode(t, err))
}

func TestNakamaForge_ConcurrentWriteIsRejected(t *testing.T) {
	host, nk, _ := newTestForge(t, NakamaForgeConfig{})
	ctx := context.Background()
	logger := &mockLogger{}

	_, err := host.State(ctx, logger, nk, testUserID)
	require.NoError(t, err)

	// Another server node writes between our read and our write
	nk.beforeWrite = func() {
		nk.beforeWrite = nil
		require.NoError(t, NewNakamaSaveStore(logger, nk, "vis").Save(ctx, testUserID, &SaveFile{Version: SaveVersion}))
	}
	_, _, err = host.Conjure(ctx, logger, nk, testUserID, 1)
	require.Error(t, err)
	assert.Zero(t, nk.counter("visforge_events:"+EventConjured))
	assert.Zero(t, storedSaveOf(t, nk, testUserID).Progress.TotalClicks)
}

func TestNakamaForge_StorageFailures(t *testing.T) {
	host, nk, _ := newTestForge(t, NakamaForgeConfig{})
	ctx := context.Background()

	nk.failRead = errors.New("database unavailable")
	_, err := host.State(ctx, &mockLogger{}, nk, testUserID)
	assert.EqualError(t, err, "database unavailable")

	nk.failRead = nil
	nk.failWrite = errors.New("disk full")
	_, err = host.State(ctx, &mockLogger{}, nk, testUserID)
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, INTERNAL_ERROR_CODE, ErrorCode(err))
}

func TestNakamaSaveStore_LoadAndSave(t *testing.T) {
	nk := newTestNakamaModule(RealClock{})
	store := NewNakamaSaveStore(&mockLogger{}, nk, "vis")
	ctx := context.Background()

	_, err := store.Load(ctx, testUserID)
	assert.True(t, errors.Is(err, ErrSaveNotFound))

	require.NoError(t, store.Save(ctx, testUserID, &SaveFile{Version: SaveVersion, Resources: map[string]uint64{"vis": 9}}))
	require.NoError(t, store.Save(ctx, testUserID, &SaveFile{Version: SaveVersion, Resources: map[string]uint64{"vis": 11}}))

	save, err := store.Load(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), save.Resources["vis"])

	// Legacy saves stored by older clients are migrated on read
	nk.storage[storageKey(testUserID, saveStorageCollection, userSaveStorageKey)].Value = `{"inventory": {"Vis": 5}}`
	save, err = store.Load(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), save.Resources["vis"])
}
