package forge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDataJSON = `{
  "economy": {"primary_currency": "vis", "primary_capacity": 80, "base_materials": ["ignis", "aer"], "drop_chance_percent": 0},
  "recipes": {"secondary": {"lux": {"ignis": 1, "aer": 1}}},
  "nodes": [
    {"id": "start", "start_unlocked": true, "rewards": ["flag:secondary_open"]},
    {"id": "next", "cost": {"vis": 20, "lux": 1}, "prerequisites": ["start"], "rewards": [{"type": "tab", "target": "crafting"}]}
  ],
  "quests": [
    {"id": "first", "stages": [{"id": "s1", "requires": {"resource": "lux", "count": 2}, "rewards": {"resources": {"vis": 5}}}]}
  ],
  "upgrades": [
    {"id": "cap", "cost": {"vis": 40}, "effect": {"kind": "capacity", "delta": 20}}
  ]
}`

const testDataYAML = `
economy:
  primary_currency: vis
  primary_capacity: 80
  base_materials: [ignis, aer]
  drop_chance_percent: 0
recipes:
  secondary:
    lux: {ignis: 1, aer: 1}
nodes:
  - id: start
    start_unlocked: true
    rewards: ["flag:secondary_open"]
  - id: next
    cost: {vis: 20, lux: 1}
    prerequisites: [start]
    rewards:
      - {type: tab, target: crafting}
quests:
  - id: first
    stages:
      - id: s1
        requires: {resource: lux, count: 2}
        rewards:
          resources: {vis: 5}
upgrades:
  - id: cap
    cost: {vis: 40}
    effect: {kind: capacity, delta: 20}
`

func TestParseGameData_JSONAndYAMLAgree(t *testing.T) {
	fromJSON, problems, err := ParseGameData([]byte(testDataJSON), FormatJSON)
	require.NoError(t, err)
	require.Empty(t, problems)
	fromYAML, problems, err := ParseGameData([]byte(testDataYAML), FormatYAML)
	require.NoError(t, err)
	require.Empty(t, problems)

	assert.Equal(t, fromJSON.Economy, fromYAML.Economy)
	assert.Equal(t, fromJSON.Catalog.Categories(), fromYAML.Catalog.Categories())
	assert.Equal(t, fromJSON.Tree.Nodes(), fromYAML.Tree.Nodes())
	assert.Equal(t, fromJSON.QuestLines(), fromYAML.QuestLines())
	assert.Equal(t, fromJSON.Upgrades(), fromYAML.Upgrades())

	// Declared order is kept, not sorted
	next, ok := fromJSON.Tree.Node("next")
	require.True(t, ok)
	assert.Equal(t, CostOf("vis", 20, "lux", 1), next.Cost)
	assert.Equal(t, []RewardEffect{UnlockTab("crafting")}, next.Rewards)

	// Explicit zero survives defaulting, unset fields do not
	assert.Equal(t, 0, fromJSON.Economy.DropChance())
	assert.Equal(t, uint64(80), fromJSON.Economy.PrimaryCapacity)
	assert.Equal(t, uint64(1), fromJSON.Economy.ClickAmount)
	assert.Equal(t, "auto_progression", fromJSON.Economy.AutoFlag)
}

func TestParseGameData_EmptyAndMalformed(t *testing.T) {
	data, problems, err := ParseGameData([]byte("   "), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, "vis", data.Economy.PrimaryCurrency)
	assert.Zero(t, data.Tree.Len())

	_, _, err = ParseGameData([]byte(`{"nodes": [`), FormatJSON)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGameData))

	_, _, err = ParseGameData([]byte("economy: {primary_capacity: lots}"), FormatYAML)
	assert.True(t, errors.Is(err, ErrInvalidGameData))

	_, _, err = ParseGameData([]byte(`{}`), DataFormat("toml"))
	assert.True(t, errors.Is(err, ErrInvalidGameData))

	_, _, err = ParseGameData([]byte(`{"nodes": [{"id": "a", "rewards": ["sparkles"]}]}`), FormatJSON)
	assert.True(t, errors.Is(err, ErrInvalidGameData))
}

func TestNewGameData_ReportsBrokenReferences(t *testing.T) {
	config := testGameDataConfig()
	config.Recipes = append(config.Recipes, &RecipeCategory{
		Name:         "forge",
		RequiresFlag: "forging",
		Items:        []*RecipeItem{{Name: "mithril", Cost: CostOf("moonstone", 1), Locked: true}},
	})
	config.Quests = append(config.Quests,
		&QuestLineConfig{ID: "fire", Stages: []*QuestStageConfig{{ID: "again"}}},
		&QuestLineConfig{ID: "lost", Stages: []*QuestStageConfig{{ID: "s1", Rewards: &QuestRewards{Nodes: []string{"Z"}}}}},
	)
	config.Upgrades = append(config.Upgrades,
		&UpgradeConfig{ID: "broken", Effect: UpgradeEffect{Kind: "speed", Delta: 1}},
		&UpgradeConfig{ID: "gated", RequiresFlag: "nobody_sets_this", Cost: CostOf("stardust", 2), Effect: UpgradeEffect{Kind: UpgradeDropChance, Delta: 1}},
	)

	data, problems := NewGameData(config)
	require.NotNil(t, data)

	var messages []string
	for _, problem := range problems {
		assert.True(t, errors.Is(problem, ErrInvalidGameData))
		messages = append(messages, problem.Error())
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, `category "forge" requires flag "forging" which nothing sets`)
	assert.Contains(t, joined, `locked recipe "mithril" is never unlocked`)
	assert.Contains(t, joined, `recipe "mithril" uses unknown resource "moonstone"`)
	assert.Contains(t, joined, `duplicate quest line "fire"`)
	assert.Contains(t, joined, `rewards unknown node "Z"`)
	assert.Contains(t, joined, `unknown effect kind "speed"`)
	assert.Contains(t, joined, `upgrade "gated" requires flag "nobody_sets_this"`)
	assert.Contains(t, joined, `upgrade "gated" costs unknown resource "stardust"`)
	assert.Len(t, problems, 8)

	// Broken entries are dropped, the rest stays usable
	_, ok := data.Upgrade("broken")
	assert.False(t, ok)
	_, ok = data.Upgrade("gated")
	assert.True(t, ok)
	assert.Len(t, data.QuestLines(), 2)
}

func TestNewGameData_AutoIntervalUpgradeNeedsAutoFlag(t *testing.T) {
	config := testGameDataConfig()
	config.Nodes = config.Nodes[:3]

	_, problems := NewGameData(config)
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0].Error(), `upgrade "auto_interval" requires flag "auto_progression"`)
	assert.Contains(t, problems[1].Error(), `upgrade "auto_interval" tunes auto progression`)
}

func TestNewGameData_CapacityUpgradeNeedsACeiling(t *testing.T) {
	config := testGameDataConfig()
	config.Upgrades = append(config.Upgrades, &UpgradeConfig{ID: "soul_capacity", Effect: UpgradeEffect{Kind: UpgradeCapacity, Resource: "souls", Delta: 5}})

	problems := ValidateGameData(config)
	require.Len(t, problems, 1)
	assert.True(t, errors.Is(problems[0], ErrInvalidGameData))
	assert.Contains(t, problems[0].Error(), `upgrade "soul_capacity" raises capacity of uncapped resource "souls"`)
}

func TestNewGameData_AutoIntervalIsFloored(t *testing.T) {
	config := testGameDataConfig()
	config.Economy.AutoIntervalMs = 100
	data, problems := NewGameData(config)
	require.Empty(t, problems)
	assert.Equal(t, 500*time.Millisecond, data.Economy.AutoInterval())

	ctrl := NewController(data, nil, WithLogger(&mockLogger{}))
	assert.Equal(t, 500*time.Millisecond, ctrl.AutoInterval())
	restored := NewController(data, ctrl.Save(), WithLogger(&mockLogger{}))
	assert.Equal(t, ctrl.AutoInterval(), restored.AutoInterval())
}

func TestNewGameData_RetiredResourcesAreKnown(t *testing.T) {
	config := testGameDataConfig()
	config.Nodes = append(config.Nodes, &UnlockNode{ID: "legacy", Cost: CostOf("gold", 100)})

	assert.Len(t, ValidateGameData(config), 1)

	config.RetiredResources = []string{"gold"}
	assert.Empty(t, ValidateGameData(config))
}

func TestDefaultGameData(t *testing.T) {
	data, problems, err := DefaultGameData()
	require.NoError(t, err)
	assert.Empty(t, problems)

	assert.Equal(t, "vis", data.Economy.PrimaryCurrency)
	assert.Equal(t, "souls", data.Economy.PremiumCurrency)
	assert.Len(t, data.Catalog.Categories(), 4)
	assert.Equal(t, 6, data.Tree.Len())
	assert.Len(t, data.QuestLines(), 4)
	assert.Len(t, data.Upgrades(), 5)

	ordered, cyclic := data.Tree.TopologicalOrder()
	assert.Empty(t, cyclic)
	assert.Equal(t, "basic_crystals", ordered[0].ID)

	ctrl := NewController(data, nil, WithLogger(&mockLogger{}))
	assert.True(t, ctrl.Graph().IsUnlocked("basic_crystals"))
	assert.True(t, ctrl.Capabilities().HasTab("gathering"))
}

func TestLoadGameData_FromFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(testDataJSON), 0o600))
	sniffPath := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(sniffPath, []byte(testDataYAML), 0o600))

	data, problems, err := LoadGameData(jsonPath)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, 2, data.Tree.Len())

	data, _, err = LoadGameData(sniffPath)
	require.NoError(t, err)
	assert.Equal(t, 2, data.Tree.Len())

	_, _, err = LoadGameData(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	empty := LoadGameDataOrEmpty(&mockLogger{}, filepath.Join(dir, "missing.yaml"))
	assert.Zero(t, empty.Tree.Len())
	assert.Empty(t, empty.Upgrades())
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path    string
		content string
		want    DataFormat
	}{
		{"data.json", "", FormatJSON},
		{"data.YML", "", FormatYAML},
		{"data.yaml", "{}", FormatYAML},
		{"data", "  {\"nodes\": []}", FormatJSON},
		{"data", "[]", FormatJSON},
		{"data", "nodes: []", FormatYAML},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatForPath(tt.path, []byte(tt.content)), tt.path)
	}
}

func TestParseRewardEffect(t *testing.T) {
	effect, err := ParseRewardEffect(" recipe : steel ")
	require.NoError(t, err)
	assert.Equal(t, UnlockRecipe("steel"), effect)
	assert.Equal(t, "recipe:steel", effect.String())

	for _, bad := range []string{"steel", "spell:fireball", "flag:"} {
		_, err := ParseRewardEffect(bad)
		assert.True(t, errors.Is(err, ErrInvalidGameData), bad)
	}
}
