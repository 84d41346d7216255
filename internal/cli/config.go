// Config loading for the strata CLI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/strata/internal/paths"
	"github.com/mesh-intelligence/strata/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyDialect        = "dialect"
	cfgKeyDSN            = "dsn"
	cfgKeyDataDir        = "data_dir"
	cfgKeyPoolSize       = "pool_size"
	cfgKeyAcquireTimeout = "acquire_timeout_ms"
	cfgKeyWriterPriority = "writer_priority"
	cfgKeyWorkerID       = "worker_id"
	cfgKeyDatacenterID   = "datacenter_id"

	defaultDialect = "sqlite"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Strata CLI configuration

# Engine dialect: sqlite or postgres
dialect: sqlite

# DSN: a file path for sqlite, a conninfo string for postgres.
# Empty means <data-dir>/strata.db for sqlite.
# dsn:

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Connection pool size (default: 1 for sqlite, 8 for postgres)
# pool_size:
`

// loadConfig reads config.yaml from the resolved config directory using
// Viper, creating the directory and a default file on first run. A
// missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyDialect, defaultDialect)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// engineConfig builds the engine Config from the loaded viper config
// and global flags, and returns the resolved data directory. The sqlite
// DSN defaults to strata.db inside the data directory.
func engineConfig() (types.Config, string, error) {
	configDir, err := resolveConfigDir()
	if err != nil {
		return types.Config{}, "", err
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return types.Config{}, "", err
	}

	cfg := types.Config{
		Dialect:        v.GetString(cfgKeyDialect),
		DSN:            v.GetString(cfgKeyDSN),
		PoolSize:       v.GetInt(cfgKeyPoolSize),
		AcquireTimeout: v.GetInt(cfgKeyAcquireTimeout),
		WriterPriority: v.GetBool(cfgKeyWriterPriority),
		WorkerID:       v.GetInt(cfgKeyWorkerID),
		DatacenterID:   v.GetInt(cfgKeyDatacenterID),
	}

	dataDir, err := paths.ResolveDataDir(flagDataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, "", err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return types.Config{}, "", err
	}
	if cfg.DSN == "" && cfg.Dialect == "sqlite" {
		cfg.DSN = filepath.Join(dataDir, "strata.db")
	}
	return cfg, dataDir, nil
}
