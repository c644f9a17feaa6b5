package forge

import (
	"context"
	"encoding/json"
	"fmt"
)

// SaveVersion is the schema version written by Controller.Save.
const SaveVersion = 2

type PlayerInfo struct {
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	Level      uint64 `json:"level,omitempty"`
	Experience uint64 `json:"experience,omitempty"`
}

type ProgressStats struct {
	TotalClicks        uint64 `json:"total_clicks,omitempty"`
	TotalPrimaryEarned uint64 `json:"total_primary_earned,omitempty"`
	PlayTimeMs         int64  `json:"play_time_ms,omitempty"`
}

type AutoState struct {
	IntervalMs int64 `json:"interval_ms,omitempty"`
	TimerMs    int64 `json:"timer_ms,omitempty"`
}

type Settings struct {
	ColorScheme string `json:"color_scheme,omitempty"`
}

// SaveFile is the persisted state of one session. Missing fields load as
// their zero values or the data defaults; unknown fields are ignored.
type SaveFile struct {
	SaveID          string            `json:"save_id,omitempty"`
	Version         int               `json:"version"`
	Player          PlayerInfo        `json:"player"`
	Resources       map[string]uint64 `json:"resources,omitempty"`
	ResourceOrder   []string          `json:"resource_order,omitempty"`
	Capacities      map[string]uint64 `json:"capacities,omitempty"`
	ClickAmount     uint64            `json:"click_amount,omitempty"`
	DropChance      *int              `json:"drop_chance_percent,omitempty"`
	Flags           map[string]bool   `json:"flags,omitempty"`
	UnlockedNodes   []string          `json:"unlocked_nodes,omitempty"`
	UnlockedRecipes []string          `json:"unlocked_recipes,omitempty"`
	UnlockedTabs    []string          `json:"unlocked_tabs,omitempty"`
	Quests          map[string]string `json:"quests,omitempty"`
	Upgrades        map[string]int    `json:"upgrades,omitempty"`
	Progress        ProgressStats     `json:"progress"`
	Auto            AutoState         `json:"auto"`
	Settings        Settings          `json:"settings"`

	// LastTickMs is the unix time in milliseconds of the last tick a server
	// host accepted. The engine carries it but never reads it.
	LastTickMs int64 `json:"last_tick_ms,omitempty"`
}

// SaveStore moves save files in and out of some storage.
type SaveStore interface {
	// Load returns ErrSaveNotFound when slot holds nothing.
	Load(ctx context.Context, slot string) (*SaveFile, error)
	Save(ctx context.Context, slot string, save *SaveFile) error
}

// legacySave is the version 1 schema written by the desktop client.
type legacySave struct {
	Player struct {
		Charactername string `json:"Charactername"`
		Title         string `json:"Title"`
		Level         uint64 `json:"Level"`
		Experience    uint64 `json:"Experience"`
	} `json:"player"`
	Inventory struct {
		Vis      *uint64         `json:"Vis"`
		Gold     *uint64         `json:"gold"`
		Essence  *uint64         `json:"essence"`
		Souls    uint64          `json:"souls"`
		Crystals json.RawMessage `json:"crystals"`
	} `json:"inventory"`
	Settings struct {
		ColorScheme string `json:"colorScheme"`
	} `json:"settings"`
	Unlocks  map[string]bool `json:"unlocks"`
	Progress struct {
		TotalClicks    uint64 `json:"totalClicks"`
		TotalVisEarned uint64 `json:"totalVisEarned"`
	} `json:"progress"`
	Upgrades struct {
		VisClickAmount *uint64 `json:"visClickAmount"`
		ClickPower     *uint64 `json:"clickPower"`
		AutoClicker    uint64  `json:"autoClicker"`
	} `json:"upgrades"`
}

// legacyFlags maps version 1 unlock booleans onto flags.
var legacyFlags = map[string]string{
	"advancedRunes":       "advanced_crafting",
	"secondary_crystals":  "secondary_crystals",
	"tertiary_crystals":   "tertiary_crystals",
	"quaternary_crystals": "quaternary_crystals",
	"visConversion":       "vis_conversion",
	"autoCliking":         "auto_progression",
	"autoClicking":        "auto_progression",
}

// DecodeSave parses a save file of any known version. Version 1 saves from
// the desktop client are migrated; the primary currency of those is
// written under primary.
func DecodeSave(content []byte, primary string) (*SaveFile, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(content, &probe); err != nil {
		return nil, fmt.Errorf("decode save: %w", err)
	}

	if _, ok := probe["version"]; ok {
		save := &SaveFile{}
		if err := json.Unmarshal(content, save); err != nil {
			return nil, fmt.Errorf("decode save: %w", err)
		}
		return save, nil
	}
	if _, ok := probe["inventory"]; ok {
		return migrateLegacySave(content, primary)
	}

	// No version and nothing legacy: treat as a sparse current save.
	save := &SaveFile{}
	if err := json.Unmarshal(content, save); err != nil {
		return nil, fmt.Errorf("decode save: %w", err)
	}
	save.Version = SaveVersion
	return save, nil
}

func migrateLegacySave(content []byte, primary string) (*SaveFile, error) {
	var legacy legacySave
	if err := json.Unmarshal(content, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy save: %w", err)
	}
	if primary == "" {
		primary = defaultPrimaryCurrency
	}

	save := &SaveFile{
		Version: SaveVersion,
		Player: PlayerInfo{
			Name:       legacy.Player.Charactername,
			Title:      legacy.Player.Title,
			Level:      legacy.Player.Level,
			Experience: legacy.Player.Experience,
		},
		Resources: make(map[string]uint64),
		Flags:     make(map[string]bool),
		Progress: ProgressStats{
			TotalClicks:        legacy.Progress.TotalClicks,
			TotalPrimaryEarned: legacy.Progress.TotalVisEarned,
		},
		Settings: Settings{ColorScheme: legacy.Settings.ColorScheme},
	}

	add := func(id string, count uint64) {
		if _, ok := save.Resources[id]; !ok {
			save.ResourceOrder = append(save.ResourceOrder, id)
		}
		save.Resources[id] = saturatingAdd(save.Resources[id], count)
	}

	// Older variants named the primary currency gold or essence
	switch {
	case legacy.Inventory.Vis != nil:
		add(primary, *legacy.Inventory.Vis)
	case legacy.Inventory.Essence != nil:
		add(primary, *legacy.Inventory.Essence)
	case legacy.Inventory.Gold != nil:
		add(primary, *legacy.Inventory.Gold)
	}
	if legacy.Inventory.Souls > 0 {
		add("souls", legacy.Inventory.Souls)
	}
	if len(legacy.Inventory.Crystals) > 0 && string(legacy.Inventory.Crystals) != "null" {
		var crystals Cost
		if err := json.Unmarshal(legacy.Inventory.Crystals, &crystals); err != nil {
			return nil, fmt.Errorf("decode legacy crystals: %w", err)
		}
		for _, entry := range crystals {
			add(entry.Resource, entry.Amount)
		}
	}

	for name, on := range legacy.Unlocks {
		if !on {
			continue
		}
		if flag, ok := legacyFlags[name]; ok {
			save.Flags[flag] = true
		} else {
			save.Flags[name] = true
		}
	}

	switch {
	case legacy.Upgrades.VisClickAmount != nil:
		save.ClickAmount = *legacy.Upgrades.VisClickAmount
	case legacy.Upgrades.ClickPower != nil:
		save.ClickAmount = *legacy.Upgrades.ClickPower
	}

	return save, nil
}

// EncodeSave renders save as indented JSON.
func EncodeSave(save *SaveFile) ([]byte, error) {
	return json.MarshalIndent(save, "", "  ")
}
