package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stakerchain/crypto"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRPCAddress      = ":8545"
	DefaultDataDir         = "./staker-data"
	DefaultDeadlineSeconds = 180
	DefaultThreshold       = "1000000000000000000"
	DefaultRequestsPerMin  = 120
	DefaultBurst           = 20
	DefaultEventCapacity   = 1024
)

type Config struct {
	RPCAddress  string    `toml:"RPCAddress"`
	DataDir     string    `toml:"DataDir"`
	Environment string    `toml:"Environment"`
	Pool        Pool      `toml:"Pool"`
	Logging     Logging   `toml:"Logging"`
	Telemetry   Telemetry `toml:"Telemetry"`
	RateLimit   RateLimit `toml:"RateLimit"`
	Auth        Auth      `toml:"Auth"`
	Events      Events    `toml:"Events"`
	Alloc       []Alloc   `toml:"Alloc"`
}

// Load loads the configuration from the given path, writing a fresh default
// file when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = DefaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Pool.DeadlineSeconds == 0 {
		c.Pool.DeadlineSeconds = DefaultDeadlineSeconds
	}
	if strings.TrimSpace(c.Pool.Threshold) == "" {
		c.Pool.Threshold = DefaultThreshold
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Events.Capacity == 0 {
		c.Events.Capacity = DefaultEventCapacity
	}
	if c.Alloc == nil {
		c.Alloc = []Alloc{}
	}
}

// createDefault creates and saves a default configuration file. The pool and
// beneficiary accounts are derived from freshly generated keys.
func createDefault(path string) (*Config, error) {
	poolKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	beneficiaryKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:  DefaultRPCAddress,
		DataDir:     DefaultDataDir,
		Environment: "local",
		Pool: Pool{
			Address:         crypto.FormatAddress(poolKey.Address()),
			Beneficiary:     crypto.FormatAddress(beneficiaryKey.Address()),
			DeadlineSeconds: DefaultDeadlineSeconds,
			Threshold:       DefaultThreshold,
		},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 3},
		RateLimit: RateLimit{
			RequestsPerMinute: DefaultRequestsPerMin,
			Burst:             DefaultBurst,
		},
		Events: Events{Capacity: DefaultEventCapacity},
		Alloc:  []Alloc{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
