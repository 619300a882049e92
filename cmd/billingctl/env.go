package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcclellann/fredBilling/pkg/config"
	"github.com/mcclellann/fredBilling/pkg/logging"
	"github.com/mcclellann/fredBilling/pkg/store"
)

// setup loads the configuration, installs the logger and opens the database.
func setup() (config.Config, *store.SQLiteStore, error) {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		return config.Config{}, nil, err
	}
	logging.Setup(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.Config{}, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, s, nil
}
