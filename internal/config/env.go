package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides lets deployments inject endpoints and secrets without
// editing the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.General.DBPath, "PREDICTSIM_DB_PATH")
	setStr(&cfg.General.LogLevel, "PREDICTSIM_LOG_LEVEL")
	setUint64(&cfg.General.Seed, "PREDICTSIM_SEED")

	setBool(&cfg.Redis.Enabled, "PREDICTSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDICTSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTSIM_REDIS_DB")

	setStr(&cfg.Archive.Dir, "PREDICTSIM_ARCHIVE_DIR")
	setBool(&cfg.Archive.S3Enabled, "PREDICTSIM_S3_ENABLED")
	setStr(&cfg.Archive.Bucket, "PREDICTSIM_S3_BUCKET")
	setStr(&cfg.Archive.Region, "PREDICTSIM_S3_REGION")
	setStr(&cfg.Archive.Endpoint, "PREDICTSIM_S3_ENDPOINT")
	setStr(&cfg.Archive.AccessKey, "PREDICTSIM_S3_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "PREDICTSIM_S3_SECRET_KEY")

	setBool(&cfg.Scenarios.ManifoldImport, "PREDICTSIM_MANIFOLD_IMPORT")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			*dst = true
		case "0", "false", "no":
			*dst = false
		}
	}
}
