package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zyetaone/z-interact-sub000/internal/config"
	"github.com/zyetaone/z-interact-sub000/internal/db"
	"github.com/zyetaone/z-interact-sub000/internal/feed"
)

// connectFromConfig loads the config file and opens the database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// feedConfig builds the session tuning from the loaded config.
func feedConfig(cfg *config.Config) feed.Config {
	return feed.Config{
		PollInterval:   cfg.Feed.PollInterval(),
		Lifetime:       cfg.Feed.SessionLifetime(),
		RetryBudget:    cfg.Feed.RetryBudget,
		BatchLimit:     cfg.Feed.BatchLimit,
		ExpectedTables: cfg.TableIDs(),
	}
}
