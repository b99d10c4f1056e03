package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"booq/store"
	"booq/types"
)

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present.
func LoadConfig() (types.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := types.Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		StoragePath:  getEnv("STORAGE_PATH", "./data/files"),
		StoreBackend: getEnv("STORE_BACKEND", "file"),
		Analysis: types.ModelConfig{
			URL:    os.Getenv("LLM_URL"),
			Model:  os.Getenv("LLM_MODEL"),
			APIKey: os.Getenv("LLM_API_KEY"),
		},
		Solving: types.ModelConfig{
			URL:    os.Getenv("SOLVING_LLM_URL"),
			Model:  os.Getenv("SOLVING_LLM_MODEL"),
			APIKey: os.Getenv("SOLVING_LLM_API_KEY"),
		},
		Loader: types.LoaderConfig{
			SourceDir:  getEnv("LOADER_SOURCE_DIR", "./inbox"),
			ArchiveDir: getEnv("LOADER_ARCHIVE_DIR", "./archive"),
			BadDir:     getEnv("LOADER_BAD_DIR", "./bad"),
		},
	}

	var err error
	if cfg.RequestsPerSec, err = strconv.ParseFloat(getEnv("LLM_RPS", "0"), 64); err != nil {
		return cfg, fmt.Errorf("LLM_RPS: %w", err)
	}
	if cfg.RepairAttempts, err = strconv.Atoi(getEnv("LLM_REPAIR_ATTEMPTS", "0")); err != nil {
		return cfg, fmt.Errorf("LLM_REPAIR_ATTEMPTS: %w", err)
	}
	if cfg.Loader.MonitoringTime, err = time.ParseDuration(getEnv("LOADER_MONITORING_TIME", "5s")); err != nil {
		return cfg, fmt.Errorf("LOADER_MONITORING_TIME: %w", err)
	}

	switch cfg.StoreBackend {
	case "file":
	case "postgres":
		port, err := strconv.Atoi(getEnv("PG_PORT", "5432"))
		if err != nil {
			return cfg, fmt.Errorf("PG_PORT: %w", err)
		}
		cfg.PostgresDSN = store.PostgresDSN(os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	default:
		return cfg, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
