package forge

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger runtime.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRandom sets the source used for material drops.
func WithRandom(random RandomSource) ControllerOption {
	return func(c *Controller) {
		if random != nil {
			c.random = random
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(clock Clock) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Controller runs one session against shared game data. It is the only
// entry point a host needs: every operation runs to completion, and a host
// must serialize calls.
type Controller struct {
	data   *GameData
	logger runtime.Logger
	random RandomSource
	clock  Clock

	saveID   string
	player   PlayerInfo
	settings Settings
	ledger   *ResourceLedger
	graph    *UnlockGraph
	caps     *Capabilities
	quests   map[string]*QuestLine
	upgrades map[string]int
	progress ProgressStats

	clickAmount  uint64
	dropChance   int
	autoInterval time.Duration
	autoTimer    time.Duration
	playTime     time.Duration

	events []*PublisherEvent
}

// NewController starts a session. A nil save starts a new game; otherwise the
// session continues from save.
func NewController(data *GameData, save *SaveFile, opts ...ControllerOption) *Controller {
	if data == nil {
		data = EmptyGameData()
	}
	c := &Controller{
		data:     data,
		logger:   NewNopLogger(),
		random:   NewRandomSource(uint64(time.Now().UnixNano())),
		clock:    RealClock{},
		ledger:   NewResourceLedger(),
		graph:    NewUnlockGraph(data.Tree),
		caps:     NewCapabilities(),
		quests:   make(map[string]*QuestLine, len(data.QuestLines())),
		upgrades: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}

	economy := data.Economy
	c.ledger.Retire(data.Retired...)
	c.ledger.SetCapacity(economy.PrimaryCurrency, economy.PrimaryCapacity)
	c.clickAmount = economy.ClickAmount
	c.dropChance = economy.DropChance()
	c.autoInterval = economy.AutoInterval()

	for _, config := range data.QuestLines() {
		c.quests[config.ID] = NewQuestLine(config)
	}

	if save == nil {
		c.ledger.IncrementOrInsert(economy.PrimaryCurrency, 0)
		for _, entry := range economy.StartingResources {
			c.ledger.Grant(entry.Resource, entry.Amount)
		}
	} else {
		c.restore(save)
	}

	c.grantStartingNodes()
	return c
}

func (c *Controller) restore(save *SaveFile) {
	c.saveID = save.SaveID
	c.player = save.Player
	c.settings = save.Settings
	c.progress = save.Progress
	c.playTime = time.Duration(save.Progress.PlayTimeMs) * time.Millisecond

	for id, capacity := range save.Capacities {
		c.ledger.SetCapacity(id, capacity)
	}

	// Saved order first, then anything the order list missed, sorted
	seen := make(map[string]struct{}, len(save.Resources))
	for _, id := range save.ResourceOrder {
		if count, ok := save.Resources[id]; ok {
			c.ledger.IncrementOrInsert(id, count)
			seen[id] = struct{}{}
		}
	}
	for _, id := range sortedKeys(save.Resources) {
		if _, ok := seen[id]; !ok {
			c.ledger.IncrementOrInsert(id, save.Resources[id])
		}
	}
	// Re-apply ceilings to counts restored above them
	for id, capacity := range c.ledger.Capacities() {
		c.ledger.SetCapacity(id, capacity)
	}
	c.ledger.IncrementOrInsert(c.data.Economy.PrimaryCurrency, 0)

	for _, flag := range sortedKeys(save.Flags) {
		if save.Flags[flag] {
			c.caps.SetFlag(flag)
		}
	}
	for _, tab := range save.UnlockedTabs {
		c.caps.UnlockTab(tab)
	}
	for _, recipe := range save.UnlockedRecipes {
		c.caps.UnlockRecipe(recipe)
	}
	c.graph.Restore(save.UnlockedNodes)
	for _, id := range save.UnlockedNodes {
		if _, ok := c.data.Tree.Node(id); !ok {
			c.logger.Info("Keeping unlocked node %q unknown to the loaded data", id)
		}
	}

	for _, lineID := range sortedKeys(save.Quests) {
		line, ok := c.quests[lineID]
		if !ok {
			c.logger.Info("Dropping saved quest line %q unknown to the loaded data", lineID)
			continue
		}
		if !line.Restore(save.Quests[lineID]) {
			c.logger.Warn("Saved stage %q of quest line %q is unknown, restarting the line", save.Quests[lineID], lineID)
		}
	}

	for id, level := range save.Upgrades {
		if level > 0 {
			c.upgrades[id] = level
		}
	}

	if save.ClickAmount > 0 {
		c.clickAmount = save.ClickAmount
	}
	if save.DropChance != nil {
		c.dropChance = clampPercent(*save.DropChance)
	}
	if save.Auto.IntervalMs > 0 {
		c.autoInterval = time.Duration(save.Auto.IntervalMs) * time.Millisecond
	}
	if floor := c.data.Economy.MinAutoInterval(); c.autoInterval < floor {
		c.autoInterval = floor
	}
	if save.Auto.TimerMs > 0 {
		c.autoTimer = time.Duration(save.Auto.TimerMs) * time.Millisecond
	}
}

// grantStartingNodes unlocks nodes marked start_unlocked, including ones
// added to the data after the save was made.
func (c *Controller) grantStartingNodes() {
	ordered, _ := c.data.Tree.TopologicalOrder()
	for _, node := range ordered {
		if !node.StartUnlocked || c.graph.IsUnlocked(node.ID) {
			continue
		}
		if _, err := c.graph.Grant(node.ID, c.caps); err != nil {
			c.logger.Warn("Failed to grant starting node %q: %v", node.ID, err)
		}
	}
}

// EarnPrimaryCurrency adds amount of the primary currency, clamped to its
// capacity. It returns the amount actually added.
func (c *Controller) EarnPrimaryCurrency(amount uint64) uint64 {
	primary := c.data.Economy.PrimaryCurrency
	added := c.ledger.AddClamped(primary, amount, c.PrimaryCapacity())
	c.progress.TotalPrimaryEarned = saturatingAdd(c.progress.TotalPrimaryEarned, added)
	return added
}

// RollMaterialDrop draws 0-99 and, if the draw is below probabilityPercent,
// adds one of a uniformly picked candidate to the ledger.
func (c *Controller) RollMaterialDrop(probabilityPercent int, candidates []string) (string, bool) {
	if len(candidates) == 0 || probabilityPercent <= 0 {
		return "", false
	}
	if c.random.IntN(100) >= probabilityPercent {
		return "", false
	}

	pick := candidates[c.random.IntN(len(candidates))]
	c.ledger.IncrementOrInsert(pick, 1)
	c.emit(EventMaterialDropped, pick, "1", nil)
	return pick, true
}

// ConjureResult is the outcome of one click.
type ConjureResult struct {
	Earned  uint64 `json:"earned"`
	Drop    string `json:"drop,omitempty"`
	Dropped bool   `json:"dropped"`
}

// Conjure is the click action: earn the click amount of primary currency and
// roll for a base material.
func (c *Controller) Conjure() ConjureResult {
	result := ConjureResult{Earned: c.EarnPrimaryCurrency(c.clickAmount)}
	c.progress.TotalClicks = saturatingAdd(c.progress.TotalClicks, 1)
	c.emit(EventConjured, c.data.Economy.PrimaryCurrency, strconv.FormatUint(result.Earned, 10), nil)

	result.Drop, result.Dropped = c.RollMaterialDrop(c.dropChance, c.data.Economy.BaseMaterials)
	return result
}

// Craft crafts one item after checking the category and recipe gates.
func (c *Controller) Craft(category, item string) error {
	// Check if the item exists before revealing anything about gates
	recipe, err := c.data.Catalog.lookup(category, item)
	if err != nil {
		c.logger.Debug("Craft of %s/%s rejected: %v", category, item, err)
		return err
	}

	entry, _ := c.data.Catalog.Category(category)
	if !c.caps.HasFlag(entry.RequiresFlag) {
		return fmt.Errorf("%w: category %q requires %q", ErrCategoryLocked, category, entry.RequiresFlag)
	}
	if recipe.Locked && !c.caps.HasRecipe(recipe.Name) {
		return fmt.Errorf("%w: %q has not been learned", ErrRecipeLocked, recipe.Name)
	}

	if err := c.data.Catalog.Craft(c.ledger, category, item); err != nil {
		c.logger.Debug("Craft of %s/%s rejected: %v", category, item, err)
		return err
	}

	c.emit(EventItemCrafted, item, "1", map[string]string{"category": category, "cost": recipe.Cost.String()})
	return nil
}

// Unlock pays for and unlocks a node.
func (c *Controller) Unlock(nodeID string) (*UnlockOutcome, error) {
	outcome, err := c.graph.Unlock(nodeID, c.ledger, c.caps)
	if err != nil {
		if IsInformational(err) {
			c.logger.Debug("Node %q is already unlocked", nodeID)
		} else {
			c.logger.Debug("Unlock of %q rejected: %v", nodeID, err)
		}
		return nil, err
	}

	c.emit(EventNodeUnlocked, nodeID, "", map[string]string{"cost": outcome.Spent.String()})
	return outcome, nil
}

// QuestProgress reports the state of a quest line after an advance attempt.
type QuestProgress struct {
	LineID    string       `json:"line_id"`
	Advanced  bool         `json:"advanced"`
	Stage     string       `json:"stage"`
	TurnIn    *QuestTurnIn `json:"turn_in,omitempty"`
	Shortfall []Shortfall  `json:"shortfall,omitempty"`
}

// AdvanceQuest tries to turn in the active stage of a quest line. Not being
// able to afford the turn-in is not an error; Advanced is false and Shortfall
// says what is missing.
func (c *Controller) AdvanceQuest(lineID string) (*QuestProgress, error) {
	line, ok := c.quests[lineID]
	if !ok {
		return nil, &NotFoundError{Kind: NotFoundQuestLine, ID: lineID, Suggestions: suggest(lineID, sortedKeys(c.quests))}
	}

	progress := &QuestProgress{LineID: lineID}
	turnIn, advanced := line.advance(c.ledger, controllerSink{c})
	progress.Advanced = advanced
	progress.Stage = line.Stage()
	if !advanced {
		progress.Shortfall = line.Shortfall(c.ledger)
		return progress, nil
	}

	progress.TurnIn = turnIn
	for nodeID, reason := range turnIn.Skipped {
		c.logger.Warn("Quest line %q could not grant node %q: %s", lineID, nodeID, reason)
	}
	c.emit(EventQuestAdvanced, lineID, turnIn.To, map[string]string{"from": turnIn.From})
	return progress, nil
}

// Tick advances auto progression by dt. While the auto flag is set the timer
// accumulates; once it reaches the interval exactly one automatic earn
// happens and the interval is subtracted, carrying any overshoot. It returns
// the number of automatic earns performed.
func (c *Controller) Tick(dt time.Duration) int {
	if dt <= 0 {
		return 0
	}
	c.playTime += dt

	if !c.caps.HasFlag(c.data.Economy.AutoFlag) {
		return 0
	}
	c.autoTimer += dt
	if c.autoTimer < c.autoInterval {
		return 0
	}

	c.autoTimer -= c.autoInterval
	earned := c.EarnPrimaryCurrency(c.clickAmount)
	c.emit(EventAutoEarned, c.data.Economy.PrimaryCurrency, strconv.FormatUint(earned, 10), nil)
	return 1
}

// PurchaseUpgrade buys one level of an upgrade. The debit is exactly the
// declared cost and happens only when the effect can be applied.
func (c *Controller) PurchaseUpgrade(upgradeID string) (*UpgradeOutcome, error) {
	upgrade, ok := c.data.Upgrade(upgradeID)
	if !ok {
		names := make([]string, 0, len(c.data.Upgrades()))
		for _, u := range c.data.Upgrades() {
			names = append(names, u.ID)
		}
		return nil, &NotFoundError{Kind: NotFoundUpgrade, ID: upgradeID, Suggestions: suggest(upgradeID, names)}
	}

	// Check if the upgrade is available at all
	if !c.caps.HasFlag(upgrade.RequiresFlag) {
		return nil, fmt.Errorf("%w: %q requires %q", ErrUpgradeLocked, upgradeID, upgrade.RequiresFlag)
	}
	level := c.upgrades[upgradeID]
	if upgrade.MaxLevel > 0 && level >= upgrade.MaxLevel {
		return nil, fmt.Errorf("%w: %q is at level %d", ErrUpgradeMaxed, upgradeID, level)
	}

	// Check if the effect still has room before taking payment
	value, commit, err := c.planUpgrade(upgrade)
	if err != nil {
		return nil, err
	}

	if err := c.ledger.Spend(upgrade.Cost); err != nil {
		c.logger.Debug("Upgrade %q rejected: %v", upgradeID, err)
		return nil, err
	}
	commit()
	c.upgrades[upgradeID] = level + 1

	outcome := &UpgradeOutcome{
		UpgradeID: upgradeID,
		Level:     level + 1,
		Spent:     upgrade.Cost,
		Kind:      upgrade.Effect.Kind,
		Value:     value,
	}
	c.emit(EventUpgradePurchased, upgradeID, strconv.Itoa(outcome.Level), map[string]string{"cost": upgrade.Cost.String()})
	return outcome, nil
}

func (c *Controller) planUpgrade(upgrade *UpgradeConfig) (int64, func(), error) {
	effect := upgrade.Effect
	maxed := fmt.Errorf("%w: %q cannot go further", ErrUpgradeMaxed, upgrade.ID)

	switch effect.Kind {
	case UpgradeCapacity:
		resource := effect.Resource
		if resource == "" {
			resource = c.data.Economy.PrimaryCurrency
		}
		current, capped := c.ledger.Capacity(resource)
		if !capped {
			return 0, nil, fmt.Errorf("%w: upgrade %q raises capacity of uncapped resource %q", ErrInvalidGameData, upgrade.ID, resource)
		}
		next, ok := effect.step(int64(current), effect.Limit)
		// A ceiling below the held count would destroy resources nobody paid
		if !ok || uint64(next) < c.ledger.Get(resource) {
			return 0, nil, maxed
		}
		return next, func() { c.ledger.SetCapacity(resource, uint64(next)) }, nil

	case UpgradeClickAmount:
		next, ok := effect.step(int64(c.clickAmount), effect.Limit)
		if !ok || next < 1 {
			return 0, nil, maxed
		}
		return next, func() { c.clickAmount = uint64(next) }, nil

	case UpgradeAutoInterval:
		limit := effect.Limit
		if floor := c.data.Economy.MinAutoIntervalMs; effect.Delta < 0 && limit < floor {
			limit = floor
		}
		next, ok := effect.step(c.autoInterval.Milliseconds(), limit)
		if !ok {
			return 0, nil, maxed
		}
		return next, func() { c.autoInterval = time.Duration(next) * time.Millisecond }, nil

	case UpgradeDropChance:
		limit := effect.Limit
		if limit <= 0 || limit > 100 {
			limit = 100
		}
		next, ok := effect.step(int64(c.dropChance), limit)
		if !ok {
			return 0, nil, maxed
		}
		return next, func() { c.dropChance = int(next) }, nil
	}

	return 0, nil, fmt.Errorf("%w: upgrade %q has unknown effect %q", ErrInvalidGameData, upgrade.ID, effect.Kind)
}

// Save exports the session. A save id is assigned on the first save.
func (c *Controller) Save() *SaveFile {
	if c.saveID == "" {
		c.saveID = uuid.New().String()
	}

	flags := make(map[string]bool)
	for _, flag := range c.caps.Flags() {
		flags[flag] = true
	}
	quests := make(map[string]string, len(c.quests))
	for id, line := range c.quests {
		quests[id] = line.Stage()
	}
	upgrades := make(map[string]int, len(c.upgrades))
	for id, level := range c.upgrades {
		upgrades[id] = level
	}
	dropChance := c.dropChance

	progress := c.progress
	progress.PlayTimeMs = c.playTime.Milliseconds()

	return &SaveFile{
		SaveID:          c.saveID,
		Version:         SaveVersion,
		Player:          c.player,
		Resources:       c.ledger.Snapshot(),
		ResourceOrder:   c.ledger.Order(),
		Capacities:      c.ledger.Capacities(),
		ClickAmount:     c.clickAmount,
		DropChance:      &dropChance,
		Flags:           flags,
		UnlockedNodes:   c.graph.Unlocked(),
		UnlockedRecipes: c.caps.Recipes(),
		UnlockedTabs:    c.caps.Tabs(),
		Quests:          quests,
		Upgrades:        upgrades,
		Progress:        progress,
		Auto: AutoState{
			IntervalMs: c.autoInterval.Milliseconds(),
			TimerMs:    c.autoTimer.Milliseconds(),
		},
		Settings: c.settings,
	}
}

// DrainEvents returns the events produced since the last drain.
func (c *Controller) DrainEvents() []*PublisherEvent {
	events := c.events
	c.events = nil
	return events
}

func (c *Controller) emit(name, sourceID, value string, metadata map[string]string) {
	c.events = append(c.events, &PublisherEvent{
		Name:      name,
		Id:        uuid.New().String(),
		Timestamp: c.clock.Now().Unix(),
		Metadata:  metadata,
		Value:     value,
		SourceId:  sourceID,
	})
}

func (c *Controller) Data() *GameData               { return c.data }
func (c *Controller) Ledger() *ResourceLedger       { return c.ledger }
func (c *Controller) Graph() *UnlockGraph           { return c.graph }
func (c *Controller) Capabilities() *Capabilities   { return c.caps }
func (c *Controller) ClickAmount() uint64           { return c.clickAmount }
func (c *Controller) DropChance() int               { return c.dropChance }
func (c *Controller) AutoInterval() time.Duration   { return c.autoInterval }
func (c *Controller) AutoTimer() time.Duration      { return c.autoTimer }
func (c *Controller) PlayTime() time.Duration       { return c.playTime }
func (c *Controller) UpgradeLevel(id string) int    { return c.upgrades[id] }
func (c *Controller) Player() PlayerInfo            { return c.player }
func (c *Controller) SetPlayer(player PlayerInfo)   { c.player = player }
func (c *Controller) Settings() Settings            { return c.settings }
func (c *Controller) SetSettings(settings Settings) { c.settings = settings }

// Progress returns the lifetime statistics of the session.
func (c *Controller) Progress() ProgressStats {
	progress := c.progress
	progress.PlayTimeMs = c.playTime.Milliseconds()
	return progress
}

// PrimaryCapacity returns the current ceiling of the primary currency.
func (c *Controller) PrimaryCapacity() uint64 {
	capacity, _ := c.ledger.Capacity(c.data.Economy.PrimaryCurrency)
	return capacity
}

// QuestLine returns the state of a quest line.
func (c *Controller) QuestLine(lineID string) (*QuestLine, bool) {
	line, ok := c.quests[lineID]
	return line, ok
}

// controllerSink routes quest rewards into the session.
type controllerSink struct {
	c *Controller
}

func (s controllerSink) ApplyEffect(effect RewardEffect) bool {
	return s.c.caps.Apply(effect)
}

func (s controllerSink) GrantNode(nodeID string) error {
	if _, err := s.c.graph.Grant(nodeID, s.c.caps); err != nil {
		return err
	}
	s.c.emit(EventNodeUnlocked, nodeID, "", map[string]string{"granted": "true"})
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
