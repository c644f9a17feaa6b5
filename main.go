package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"visforge/forge"
)

const (
	envDataPath   = "visforge_data_path"
	envHostConfig = "visforge_host_config"
)

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading visforge Nakama plugin...")

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)

	data := loadGameData(logger, nk, env[envDataPath])
	logger.Info("Loaded game data: %d recipe categories, %d nodes, %d quest lines, %d upgrades",
		len(data.Catalog.Categories()), data.Tree.Len(), len(data.QuestLines()), len(data.Upgrades()))

	var config forge.NakamaForgeConfig
	if raw := env[envHostConfig]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			logger.Error("Failed to unmarshal %s, using defaults: %v", envHostConfig, err)
			config = forge.NakamaForgeConfig{}
		}
	}

	host := forge.NewNakamaForge(data, config, forge.NakamaMetricsPublisher{})
	if err := host.Register(initializer); err != nil {
		logger.Error("Failed to register visforge RPCs: %v", err)
		return err
	}

	logger.Info("visforge Nakama plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}

// loadGameData reads the data file shipped next to the plugin, falling back
// to the embedded content when none is configured.
func loadGameData(logger runtime.Logger, nk runtime.NakamaModule, path string) *forge.GameData {
	if path != "" {
		file, err := nk.ReadFile(path)
		if err != nil {
			logger.Error("Failed to open game data %s: %v", path, err)
			return forge.EmptyGameData()
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			logger.Error("Failed to read game data %s: %v", path, err)
			return forge.EmptyGameData()
		}
		data, problems, err := forge.ParseGameData(content, forge.FormatForPath(path, content))
		if err != nil {
			logger.Error("Failed to parse game data %s: %v", path, err)
			return forge.EmptyGameData()
		}
		for _, problem := range problems {
			logger.WithField("path", path).Warn("Game data problem: %v", problem)
		}
		return data
	}

	data, problems, err := forge.DefaultGameData()
	if err != nil {
		logger.Error("Failed to parse embedded game data: %v", err)
		return forge.EmptyGameData()
	}
	for _, problem := range problems {
		logger.Warn("Embedded game data problem: %v", problem)
	}
	return data
}
