package forge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"gopkg.in/yaml.v3"
)

//go:embed data/default.yaml
var defaultGameData []byte

const (
	defaultPrimaryCurrency   = "vis"
	defaultPrimaryCapacity   = 50
	defaultClickAmount       = 1
	defaultDropChancePercent = 50
	defaultAutoInterval      = 30 * time.Second
	defaultMinAutoInterval   = 500 * time.Millisecond
	defaultAutoFlag          = "auto_progression"
)

// EconomyConfig tunes the currencies and the click loop.
type EconomyConfig struct {
	PrimaryCurrency   string   `json:"primary_currency,omitempty" yaml:"primary_currency,omitempty"`
	PremiumCurrency   string   `json:"premium_currency,omitempty" yaml:"premium_currency,omitempty"`
	PrimaryCapacity   uint64   `json:"primary_capacity,omitempty" yaml:"primary_capacity,omitempty"`
	ClickAmount       uint64   `json:"click_amount,omitempty" yaml:"click_amount,omitempty"`
	DropChancePercent *int     `json:"drop_chance_percent,omitempty" yaml:"drop_chance_percent,omitempty"`
	BaseMaterials     []string `json:"base_materials,omitempty" yaml:"base_materials,omitempty"`
	AutoIntervalMs    int64    `json:"auto_interval_ms,omitempty" yaml:"auto_interval_ms,omitempty"`
	MinAutoIntervalMs int64    `json:"min_auto_interval_ms,omitempty" yaml:"min_auto_interval_ms,omitempty"`
	AutoFlag          string   `json:"auto_flag,omitempty" yaml:"auto_flag,omitempty"`
	AutosaveSchedule  string   `json:"autosave_schedule,omitempty" yaml:"autosave_schedule,omitempty"`
	StartingResources Cost     `json:"starting_resources,omitempty" yaml:"starting_resources,omitempty"`
}

// withDefaults returns a copy with every unset field filled in.
func (e *EconomyConfig) withDefaults() *EconomyConfig {
	out := EconomyConfig{}
	if e != nil {
		out = *e
	}
	if out.PrimaryCurrency == "" {
		out.PrimaryCurrency = defaultPrimaryCurrency
	}
	if out.PrimaryCapacity == 0 {
		out.PrimaryCapacity = defaultPrimaryCapacity
	}
	if out.ClickAmount == 0 {
		out.ClickAmount = defaultClickAmount
	}
	if out.DropChancePercent == nil {
		chance := defaultDropChancePercent
		out.DropChancePercent = &chance
	}
	if out.AutoIntervalMs <= 0 {
		out.AutoIntervalMs = defaultAutoInterval.Milliseconds()
	}
	if out.MinAutoIntervalMs <= 0 {
		out.MinAutoIntervalMs = defaultMinAutoInterval.Milliseconds()
	}
	if out.AutoIntervalMs < out.MinAutoIntervalMs {
		out.AutoIntervalMs = out.MinAutoIntervalMs
	}
	if out.AutoFlag == "" {
		out.AutoFlag = defaultAutoFlag
	}
	return &out
}

// DropChance returns the configured drop chance in percent.
func (e *EconomyConfig) DropChance() int {
	if e == nil || e.DropChancePercent == nil {
		return defaultDropChancePercent
	}
	return *e.DropChancePercent
}

// AutoInterval returns the starting auto-progression interval.
func (e *EconomyConfig) AutoInterval() time.Duration {
	return time.Duration(e.AutoIntervalMs) * time.Millisecond
}

// MinAutoInterval returns the floor auto-interval upgrades cannot go below.
func (e *EconomyConfig) MinAutoInterval() time.Duration {
	return time.Duration(e.MinAutoIntervalMs) * time.Millisecond
}

// GameDataConfig is the on-disk form of all static game content.
type GameDataConfig struct {
	Economy          *EconomyConfig     `json:"economy,omitempty" yaml:"economy,omitempty"`
	Recipes          RecipeCategories   `json:"recipes,omitempty" yaml:"recipes,omitempty"`
	Nodes            []*UnlockNode      `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Quests           []*QuestLineConfig `json:"quests,omitempty" yaml:"quests,omitempty"`
	Upgrades         []*UpgradeConfig   `json:"upgrades,omitempty" yaml:"upgrades,omitempty"`
	RetiredResources []string           `json:"retired_resources,omitempty" yaml:"retired_resources,omitempty"`
}

// GameData is the validated, read-only content shared by every session.
type GameData struct {
	Economy *EconomyConfig
	Catalog *RecipeCatalog
	Tree    *UnlockTree
	Retired []string

	quests      []*QuestLineConfig
	questByID   map[string]*QuestLineConfig
	upgrades    []*UpgradeConfig
	upgradeByID map[string]*UpgradeConfig
}

// EmptyGameData has nothing craftable, unlockable or purchasable.
func EmptyGameData() *GameData {
	data, _ := NewGameData(&GameDataConfig{})
	return data
}

// NewGameData builds GameData from config. Broken entries are dropped and
// reported; the returned data is always usable.
func NewGameData(config *GameDataConfig) (*GameData, []error) {
	if config == nil {
		config = &GameDataConfig{}
	}
	var problems []error

	catalog, catalogProblems := NewRecipeCatalog(config.Recipes)
	problems = append(problems, catalogProblems...)

	tree, treeProblems := NewUnlockTree(config.Nodes)
	problems = append(problems, treeProblems...)

	data := &GameData{
		Economy:     config.Economy.withDefaults(),
		Catalog:     catalog,
		Tree:        tree,
		Retired:     config.RetiredResources,
		questByID:   make(map[string]*QuestLineConfig),
		upgradeByID: make(map[string]*UpgradeConfig),
	}

	for _, quest := range config.Quests {
		if quest == nil {
			continue
		}
		if questProblems := quest.validate(); len(questProblems) > 0 {
			problems = append(problems, questProblems...)
			if quest.ID == "" || len(quest.Stages) == 0 {
				continue
			}
		}
		if _, dup := data.questByID[quest.ID]; dup {
			problems = append(problems, fmt.Errorf("%w: duplicate quest line %q", ErrInvalidGameData, quest.ID))
			continue
		}
		data.quests = append(data.quests, quest)
		data.questByID[quest.ID] = quest
	}

	for _, upgrade := range config.Upgrades {
		if upgrade == nil {
			continue
		}
		if upgradeProblems := upgrade.validate(); len(upgradeProblems) > 0 {
			problems = append(problems, upgradeProblems...)
			continue
		}
		if _, dup := data.upgradeByID[upgrade.ID]; dup {
			problems = append(problems, fmt.Errorf("%w: duplicate upgrade %q", ErrInvalidGameData, upgrade.ID))
			continue
		}
		data.upgrades = append(data.upgrades, upgrade)
		data.upgradeByID[upgrade.ID] = upgrade
	}

	problems = append(problems, data.checkReferences()...)
	return data, problems
}

// QuestLines returns quest line definitions in declaration order.
func (d *GameData) QuestLines() []*QuestLineConfig {
	return d.quests
}

// QuestLine looks up a quest line definition.
func (d *GameData) QuestLine(id string) (*QuestLineConfig, bool) {
	quest, ok := d.questByID[id]
	return quest, ok
}

// Upgrades returns upgrade definitions in declaration order.
func (d *GameData) Upgrades() []*UpgradeConfig {
	return d.upgrades
}

// Upgrade looks up an upgrade definition.
func (d *GameData) Upgrade(id string) (*UpgradeConfig, bool) {
	upgrade, ok := d.upgradeByID[id]
	return upgrade, ok
}

// checkReferences reports names that point at nothing: reward nodes,
// resources no source can produce, gate flags nothing sets and locked
// recipes nothing unlocks.
func (d *GameData) checkReferences() []error {
	var problems []error

	resources := map[string]struct{}{d.Economy.PrimaryCurrency: {}}
	if d.Economy.PremiumCurrency != "" {
		resources[d.Economy.PremiumCurrency] = struct{}{}
	}
	for _, id := range d.Economy.BaseMaterials {
		resources[id] = struct{}{}
	}
	for _, entry := range d.Economy.StartingResources {
		resources[entry.Resource] = struct{}{}
	}
	for _, category := range d.Catalog.Categories() {
		for _, item := range category.Items {
			resources[item.Name] = struct{}{}
		}
	}
	for _, quest := range d.quests {
		for _, stage := range quest.Stages {
			if stage != nil && stage.Rewards != nil {
				for _, entry := range stage.Rewards.Resources {
					resources[entry.Resource] = struct{}{}
				}
			}
		}
	}
	retired := make(map[string]struct{}, len(d.Retired))
	for _, id := range d.Retired {
		retired[id] = struct{}{}
	}
	known := func(id string) bool {
		_, ok := resources[id]
		_, old := retired[id]
		return ok || old
	}

	flags := map[string]struct{}{}
	recipes := map[string]struct{}{}
	collect := func(effects []RewardEffect) {
		for _, effect := range effects {
			switch effect.Kind {
			case RewardSetFlag:
				flags[effect.Target] = struct{}{}
			case RewardUnlockRecipe:
				recipes[effect.Target] = struct{}{}
			}
		}
	}
	for _, node := range d.Tree.Nodes() {
		collect(node.Rewards)
	}
	for _, quest := range d.quests {
		for _, stage := range quest.Stages {
			if stage == nil || stage.Rewards == nil {
				continue
			}
			for _, flag := range stage.Rewards.Flags {
				flags[flag] = struct{}{}
			}
			collect(stage.Rewards.Effects)
		}
	}

	for _, category := range d.Catalog.Categories() {
		if category.RequiresFlag != "" {
			if _, ok := flags[category.RequiresFlag]; !ok {
				problems = append(problems, fmt.Errorf("%w: category %q requires flag %q which nothing sets", ErrInvalidGameData, category.Name, category.RequiresFlag))
			}
		}
		for _, item := range category.Items {
			if _, ok := recipes[item.Name]; item.Locked && !ok {
				problems = append(problems, fmt.Errorf("%w: locked recipe %q is never unlocked", ErrInvalidGameData, item.Name))
			}
			for _, entry := range item.Cost {
				if !known(entry.Resource) {
					problems = append(problems, fmt.Errorf("%w: recipe %q uses unknown resource %q", ErrInvalidGameData, item.Name, entry.Resource))
				}
			}
		}
	}

	for _, node := range d.Tree.Nodes() {
		for _, entry := range node.Cost {
			if !known(entry.Resource) {
				problems = append(problems, fmt.Errorf("%w: node %q costs unknown resource %q", ErrInvalidGameData, node.ID, entry.Resource))
			}
		}
	}

	for _, quest := range d.quests {
		for _, stage := range quest.Stages {
			if stage == nil {
				continue
			}
			if res := stage.Requires.Resource; res != "" && !known(res) {
				problems = append(problems, fmt.Errorf("%w: quest %q stage %q requires unknown resource %q", ErrInvalidGameData, quest.ID, stage.ID, res))
			}
			if stage.Rewards == nil {
				continue
			}
			for _, nodeID := range stage.Rewards.Nodes {
				if _, ok := d.Tree.Node(nodeID); !ok {
					problems = append(problems, fmt.Errorf("%w: quest %q stage %q rewards unknown node %q", ErrInvalidGameData, quest.ID, stage.ID, nodeID))
				}
			}
		}
	}

	_, autoFlagSet := flags[d.Economy.AutoFlag]
	for _, upgrade := range d.upgrades {
		if upgrade.RequiresFlag != "" {
			if _, ok := flags[upgrade.RequiresFlag]; !ok {
				problems = append(problems, fmt.Errorf("%w: upgrade %q requires flag %q which nothing sets", ErrInvalidGameData, upgrade.ID, upgrade.RequiresFlag))
			}
		}
		if upgrade.Effect.Kind == UpgradeCapacity {
			if res := upgrade.Effect.Resource; res != "" && res != d.Economy.PrimaryCurrency {
				problems = append(problems, fmt.Errorf("%w: upgrade %q raises capacity of uncapped resource %q", ErrInvalidGameData, upgrade.ID, res))
			}
		}
		if upgrade.Effect.Kind == UpgradeAutoInterval && !autoFlagSet {
			problems = append(problems, fmt.Errorf("%w: upgrade %q tunes auto progression but nothing sets %q", ErrInvalidGameData, upgrade.ID, d.Economy.AutoFlag))
		}
		for _, entry := range upgrade.Cost {
			if !known(entry.Resource) {
				problems = append(problems, fmt.Errorf("%w: upgrade %q costs unknown resource %q", ErrInvalidGameData, upgrade.ID, entry.Resource))
			}
		}
	}

	return problems
}

// DataFormat selects the decoder for game data.
type DataFormat string

const (
	FormatJSON DataFormat = "json"
	FormatYAML DataFormat = "yaml"
)

// FormatForPath picks a format from a file extension, falling back to
// sniffing the content.
func FormatForPath(path string, content []byte) DataFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	if trimmed := bytes.TrimSpace(content); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// DecodeGameDataConfig parses raw game data without building it. Empty input
// is an empty config.
func DecodeGameDataConfig(content []byte, format DataFormat) (*GameDataConfig, error) {
	config := &GameDataConfig{}
	if len(bytes.TrimSpace(content)) == 0 {
		return config, nil
	}

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGameData, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGameData, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown data format %q", ErrInvalidGameData, format)
	}
	return config, nil
}

// ParseGameData decodes and builds game data. The error is set only when the
// content cannot be decoded at all; content problems come back as the slice.
func ParseGameData(content []byte, format DataFormat) (*GameData, []error, error) {
	config, err := DecodeGameDataConfig(content, format)
	if err != nil {
		return nil, nil, err
	}
	data, problems := NewGameData(config)
	return data, problems, nil
}

// LoadGameData reads and builds game data from a JSON or YAML file.
func LoadGameData(path string) (*GameData, []error, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseGameData(content, FormatForPath(path, content))
}

// LoadGameDataOrEmpty loads game data, logging problems instead of failing.
// Unreadable or malformed data yields EmptyGameData.
func LoadGameDataOrEmpty(logger runtime.Logger, path string) *GameData {
	data, problems, err := LoadGameData(path)
	if err != nil {
		logger.Error("Failed to load game data from %s: %v", path, err)
		return EmptyGameData()
	}
	for _, problem := range problems {
		logger.WithField("path", path).Warn("Game data problem: %v", problem)
	}
	return data
}

// DefaultGameData builds the embedded content set.
func DefaultGameData() (*GameData, []error, error) {
	return ParseGameData(defaultGameData, FormatYAML)
}

// ValidateGameData reports every problem found in config.
func ValidateGameData(config *GameDataConfig) []error {
	_, problems := NewGameData(config)
	return problems
}
