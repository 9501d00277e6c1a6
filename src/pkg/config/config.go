// Package config loads the storage core's tunables from the environment,
// with an optional .env file for local runs.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the storage core's tunables: pool size, replacer k,
// leaf/internal max size, and the deadlock-detection interval.
type Config struct {
	PoolSize               int           `envconfig:"POOL_SIZE"                default:"64"`
	ReplacerK              int           `envconfig:"REPLACER_K"                default:"2"`
	LeafMaxSize            int           `envconfig:"LEAF_MAX_SIZE"             default:"254"`
	InternalMaxSize        int           `envconfig:"INTERNAL_MAX_SIZE"         default:"254"`
	DeadlockDetectInterval time.Duration `envconfig:"DEADLOCK_DETECT_INTERVAL"  default:"50ms"`
	DataDir                string        `envconfig:"DATA_DIR"                  default:"./data"`
}

// Load reads an optional .env file (a missing file is not an error) and
// then populates Config from the process environment, applying the
// defaults above for anything unset.
func Load(prefix string) (Config, error) {
	var cfg Config

	_ = godotenv.Load() // best-effort; absence of .env is normal outside dev

	if err := envconfig.Process(prefix, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
