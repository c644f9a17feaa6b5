package forge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/time/rate"
)

const (
	saveStorageCollection = "visforge"
	userSaveStorageKey    = "save"

	defaultConjureRate     = 20
	defaultConjureBurst    = 40
	defaultMaxConjureBatch = 20
	defaultMaxTick         = 10 * time.Minute

	// Limiters are swept once the map reaches this size.
	limiterSweepSize = 1024
)

var ErrRateLimited = runtime.NewError("too many conjure requests", RESOURCE_EXHAUSTED_ERROR_CODE) // RESOURCE_EXHAUSTED

// NakamaForgeConfig tunes the Nakama host. Zero values use the defaults.
type NakamaForgeConfig struct {
	// ConjureRate is the sustained number of clicks per second a user may send.
	ConjureRate  float64 `json:"conjure_rate,omitempty"`
	ConjureBurst int     `json:"conjure_burst,omitempty"`
	// MaxConjureBatch bounds the count of a single conjure request.
	MaxConjureBatch int `json:"max_conjure_batch,omitempty"`
	// MaxTickMs bounds the elapsed time a single tick request may claim.
	MaxTickMs int64 `json:"max_tick_ms,omitempty"`
}

func (c NakamaForgeConfig) withDefaults() NakamaForgeConfig {
	if c.ConjureRate <= 0 {
		c.ConjureRate = defaultConjureRate
	}
	if c.ConjureBurst <= 0 {
		c.ConjureBurst = defaultConjureBurst
	}
	if c.MaxConjureBatch <= 0 {
		c.MaxConjureBatch = defaultMaxConjureBatch
	}
	if c.MaxTickMs <= 0 {
		c.MaxTickMs = defaultMaxTick.Milliseconds()
	}
	return c
}

// NakamaSaveStore keeps one save per user in Nakama storage. The slot is the
// user id.
type NakamaSaveStore struct {
	nk      runtime.NakamaModule
	logger  runtime.Logger
	primary string
}

func NewNakamaSaveStore(logger runtime.Logger, nk runtime.NakamaModule, primary string) *NakamaSaveStore {
	return &NakamaSaveStore{nk: nk, logger: logger, primary: primary}
}

func (s *NakamaSaveStore) Load(ctx context.Context, slot string) (*SaveFile, error) {
	stored, err := s.getUserSave(ctx, slot)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrSaveNotFound
	}
	return stored.save, nil
}

func (s *NakamaSaveStore) Save(ctx context.Context, slot string, save *SaveFile) error {
	return s.saveUserSave(ctx, slot, save, "")
}

// storedSave is a save together with the storage metadata of its object.
type storedSave struct {
	save    *SaveFile
	version string
	updated time.Time
}

// getUserSave retrieves the user save from storage, nil if there is none
func (s *NakamaSaveStore) getUserSave(ctx context.Context, userID string) (*storedSave, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: saveStorageCollection,
		Key:        userSaveStorageKey,
		UserID:     userID,
	}})
	if err != nil {
		s.logger.Error("Failed to read user save from storage: %v", err)
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}

	save, err := DecodeSave([]byte(objects[0].Value), s.primary)
	if err != nil {
		s.logger.Error("Failed to unmarshal user save: %v", err)
		return nil, err
	}
	stored := &storedSave{save: save, version: objects[0].Version}
	if objects[0].UpdateTime != nil {
		stored.updated = objects[0].UpdateTime.AsTime()
	}
	return stored, nil
}

// saveUserSave saves the user save to storage. A non-empty version makes the
// write conditional on the object not having changed since it was read.
func (s *NakamaSaveStore) saveUserSave(ctx context.Context, userID string, save *SaveFile, version string) error {
	data, err := json.Marshal(save)
	if err != nil {
		s.logger.Error("Failed to marshal user save: %v", err)
		return err
	}

	_, err = s.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      saveStorageCollection,
		Key:             userSaveStorageKey,
		UserID:          userID,
		Value:           string(data),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		s.logger.Error("Failed to write user save to storage: %v", err)
		return err
	}

	return nil
}

// NakamaForge runs per-user sessions inside a Nakama server. Every request
// loads the user's save, runs one controller operation, writes the save back
// and publishes the events that operation produced.
type NakamaForge struct {
	data       *GameData
	config     NakamaForgeConfig
	clock      Clock
	publishers []Publisher

	userLocksMu sync.Mutex
	userLocks   map[string]*userLock

	limitersMu   sync.Mutex
	limiters     map[string]*rate.Limiter
	nextSweepLen int
}

// userLock serializes one user's requests. refs counts the holder and the
// waiters, the entry is dropped when it reaches zero.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewNakamaForge(data *GameData, config NakamaForgeConfig, publishers ...Publisher) *NakamaForge {
	if data == nil {
		data = EmptyGameData()
	}
	return &NakamaForge{
		data:       data,
		config:     config.withDefaults(),
		clock:      RealClock{},
		publishers: publishers,
		userLocks:  make(map[string]*userLock),
		limiters:   make(map[string]*rate.Limiter),

		nextSweepLen: limiterSweepSize,
	}
}

// SetClock replaces the clock used for event stamps, rate limits and tick
// clamping.
func (f *NakamaForge) SetClock(clock Clock) {
	if clock != nil {
		f.clock = clock
	}
}

func (f *NakamaForge) Data() *GameData {
	return f.data
}

// lockUser blocks until the caller holds userID's lock and returns the
// function releasing it.
func (f *NakamaForge) lockUser(userID string) func() {
	f.userLocksMu.Lock()
	lock, ok := f.userLocks[userID]
	if !ok {
		lock = &userLock{}
		f.userLocks[userID] = lock
	}
	lock.refs++
	f.userLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		f.userLocksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(f.userLocks, userID)
		}
		f.userLocksMu.Unlock()
	}
}

func (f *NakamaForge) limiter(userID string) *rate.Limiter {
	f.limitersMu.Lock()
	defer f.limitersMu.Unlock()
	limiter, ok := f.limiters[userID]
	if !ok {
		if len(f.limiters) >= f.nextSweepLen {
			f.sweepLimiters()
		}
		limiter = rate.NewLimiter(rate.Limit(f.config.ConjureRate), f.config.ConjureBurst)
		f.limiters[userID] = limiter
	}
	return limiter
}

// sweepLimiters drops limiters that have refilled to their burst, they are
// indistinguishable from new ones. Callers hold limitersMu.
func (f *NakamaForge) sweepLimiters() {
	now := f.clock.Now()
	for userID, limiter := range f.limiters {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(f.limiters, userID)
		}
	}
	f.nextSweepLen = max(limiterSweepSize, 2*len(f.limiters))
}

// session loads the user's controller and runs action on it. When action
// fails nothing is written and no events are published. sinceTick is the wall
// time since the last accepted tick, zero for a new user. ticks marks actions
// that consume that time.
func (f *NakamaForge) session(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, ticks bool, action func(ctrl *Controller, sinceTick time.Duration) error) (*Controller, error) {
	unlock := f.lockUser(userID)
	defer unlock()

	store := NewNakamaSaveStore(logger, nk, f.data.Economy.PrimaryCurrency)
	stored, err := store.getUserSave(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := f.clock.Now()
	var (
		save      *SaveFile
		version   = "*"
		lastTick  = now
		sinceTick time.Duration
	)
	if stored != nil {
		save = stored.save
		version = stored.version
		// Saves written before tick tracking fall back to the object time
		switch {
		case save.LastTickMs > 0:
			lastTick = time.UnixMilli(save.LastTickMs)
		case !stored.updated.IsZero():
			lastTick = stored.updated
		}
		if now.After(lastTick) {
			sinceTick = now.Sub(lastTick)
		}
	}

	ctrl := NewController(f.data, save, WithLogger(logger), WithClock(f.clock))
	if action != nil {
		if err := action(ctrl, sinceTick); err != nil {
			return nil, err
		}
	}

	updated := ctrl.Save()
	updated.LastTickMs = lastTick.UnixMilli()
	if ticks {
		updated.LastTickMs = now.UnixMilli()
	}
	if err := store.saveUserSave(ctx, userID, updated, version); err != nil {
		return nil, err
	}
	Publish(ctx, logger, nk, userID, ctrl.DrainEvents(), f.publishers...)
	return ctrl, nil
}

// State returns the user's session, creating and storing a new game for
// users without a save.
func (f *NakamaForge) State(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) (*SessionView, error) {
	ctrl, err := f.session(ctx, logger, nk, userID, false, nil)
	if err != nil {
		return nil, err
	}
	return ctrl.View(), nil
}

// Conjure performs count clicks, at least one. Clicks beyond the user's rate
// allowance are rejected as a whole.
func (f *NakamaForge) Conjure(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, count int) ([]ConjureResult, *SessionView, error) {
	if count < 1 {
		count = 1
	}
	if count > f.config.MaxConjureBatch {
		return nil, nil, runtime.NewError("conjure count exceeds the batch limit", INVALID_ARGUMENT_ERROR_CODE)
	}
	if !f.limiter(userID).AllowN(f.clock.Now(), count) {
		logger.Debug("Conjure of %d rate limited for user %s", count, userID)
		return nil, nil, ErrRateLimited
	}

	results := make([]ConjureResult, 0, count)
	ctrl, err := f.session(ctx, logger, nk, userID, false, func(ctrl *Controller, _ time.Duration) error {
		for i := 0; i < count; i++ {
			results = append(results, ctrl.Conjure())
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return results, ctrl.View(), nil
}

func (f *NakamaForge) Craft(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, category, item string) (*SessionView, error) {
	ctrl, err := f.session(ctx, logger, nk, userID, false, func(ctrl *Controller, _ time.Duration) error {
		return ctrl.Craft(category, item)
	})
	if err != nil {
		return nil, err
	}
	return ctrl.View(), nil
}

func (f *NakamaForge) Unlock(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, nodeID string) (*UnlockOutcome, *SessionView, error) {
	var outcome *UnlockOutcome
	ctrl, err := f.session(ctx, logger, nk, userID, false, func(ctrl *Controller, _ time.Duration) error {
		var err error
		outcome, err = ctrl.Unlock(nodeID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return outcome, ctrl.View(), nil
}

func (f *NakamaForge) AdvanceQuest(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, lineID string) (*QuestProgress, *SessionView, error) {
	var progress *QuestProgress
	ctrl, err := f.session(ctx, logger, nk, userID, false, func(ctrl *Controller, _ time.Duration) error {
		var err error
		progress, err = ctrl.AdvanceQuest(lineID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return progress, ctrl.View(), nil
}

func (f *NakamaForge) PurchaseUpgrade(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, upgradeID string) (*UpgradeOutcome, *SessionView, error) {
	var outcome *UpgradeOutcome
	ctrl, err := f.session(ctx, logger, nk, userID, false, func(ctrl *Controller, _ time.Duration) error {
		var err error
		outcome, err = ctrl.PurchaseUpgrade(upgradeID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return outcome, ctrl.View(), nil
}

// Tick advances auto progression by the elapsed time the client reports. The
// claim is clamped to the wall time since the last accepted tick and to the
// configured maximum. Time is fed to the controller in steps no longer
// than the auto interval, so every elapsed interval earns once.
func (f *NakamaForge) Tick(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, elapsed time.Duration) (int, *SessionView, error) {
	if elapsed < 0 {
		return 0, nil, runtime.NewError("elapsed time must not be negative", INVALID_ARGUMENT_ERROR_CODE)
	}
	if limit := time.Duration(f.config.MaxTickMs) * time.Millisecond; elapsed > limit {
		elapsed = limit
	}

	earns := 0
	ctrl, err := f.session(ctx, logger, nk, userID, true, func(ctrl *Controller, sinceTick time.Duration) error {
		if elapsed > sinceTick {
			logger.Debug("Clamping tick of user %s from %v to %v", userID, elapsed, sinceTick)
			elapsed = sinceTick
		}
		for remaining := elapsed; remaining > 0; {
			step := min(remaining, ctrl.AutoInterval())
			if step <= 0 {
				break
			}
			earns += ctrl.Tick(step)
			remaining -= step
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return earns, ctrl.View(), nil
}
