package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stakerchain/crypto"
)

func testAddress(fill byte) string {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return crypto.FormatAddress(addr)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	contents := fmt.Sprintf(`RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
Environment = "staging"

[Pool]
Address = "%s"
Beneficiary = "0x%s"
DeadlineSeconds = 600
Threshold = "2500"

[Logging]
Level = "debug"
File = "/var/log/stakerd.log"
MaxSizeMB = 10
MaxBackups = 2

[Telemetry]
Endpoint = "collector:4318"
Insecure = true
Headers = "api-key=abc"
Traces = true
SampleRatio = 0.1

[RateLimit]
RequestsPerMinute = 30
Burst = 5
TrustProxyHeaders = true

[Auth]
Enabled = true
HMACSecret = "0123456789abcdef0123"
Issuer = "stakerd"
Scope = "staker:write"
ClockSkewSeconds = 30

[Events]
Capacity = 64
ArchiveDSN = "postgres://staker@db/events"

[[Alloc]]
Address = "%s"
Balance = "1000"

[[Alloc]]
Address = "%s"
Balance = "7"
`, testAddress(0xAA), strings.Repeat("be", 20), testAddress(0x01), testAddress(0x02))

	cfg, err := Load(writeConfig(t, contents))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" || cfg.DataDir != "./data" || cfg.Environment != "staging" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.MaxSizeMB != 10 || cfg.Logging.MaxBackups != 2 {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Metrics || !cfg.Telemetry.Insecure || cfg.Telemetry.SampleRatio != 0.1 {
		t.Fatalf("unexpected telemetry section: %+v", cfg.Telemetry)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 || cfg.RateLimit.Burst != 5 || !cfg.RateLimit.TrustProxyHeaders {
		t.Fatalf("unexpected rate limit section: %+v", cfg.RateLimit)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Issuer != "stakerd" || cfg.Auth.Scope != "staker:write" || cfg.Auth.ClockSkewSeconds != 30 {
		t.Fatalf("unexpected auth section: %+v", cfg.Auth)
	}
	if cfg.Events.Capacity != 64 || cfg.Events.ArchiveDSN != "postgres://staker@db/events" {
		t.Fatalf("unexpected events section: %+v", cfg.Events)
	}

	params, err := cfg.PoolParams()
	if err != nil {
		t.Fatalf("pool params: %v", err)
	}
	if params.Deadline != 10*time.Minute {
		t.Fatalf("expected 10m deadline, got %s", params.Deadline)
	}
	if params.Threshold.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("unexpected threshold %s", params.Threshold)
	}
	if params.Beneficiary[0] != 0xbe || params.Address[0] != 0xAA {
		t.Fatalf("unexpected addresses %x %x", params.Address, params.Beneficiary)
	}

	allocs, err := cfg.GenesisAllocs()
	if err != nil {
		t.Fatalf("allocs: %v", err)
	}
	if len(allocs) != 2 || allocs[0].Balance.Int64() != 1000 || allocs[1].Address[0] != 0x02 {
		t.Fatalf("unexpected allocs: %+v", allocs)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	contents := fmt.Sprintf(`[Pool]
Address = "%s"
Beneficiary = "%s"
`, testAddress(0xAA), testAddress(0xBE))
	cfg, err := Load(writeConfig(t, contents))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != DefaultRPCAddress || cfg.DataDir != DefaultDataDir {
		t.Fatalf("expected defaults, got %q %q", cfg.RPCAddress, cfg.DataDir)
	}
	params, err := cfg.PoolParams()
	if err != nil {
		t.Fatalf("pool params: %v", err)
	}
	if params.Deadline != 180*time.Second {
		t.Fatalf("expected 180s default deadline, got %s", params.Deadline)
	}
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if params.Threshold.Cmp(oneEther) != 0 {
		t.Fatalf("expected 1e18 default threshold, got %s", params.Threshold)
	}
	if cfg.Events.Capacity != DefaultEventCapacity || cfg.Events.ArchiveDSN != "" {
		t.Fatalf("unexpected events defaults: %+v", cfg.Events)
	}
	if cfg.Logging.Level != "info" || cfg.Alloc == nil {
		t.Fatalf("expected logging and alloc defaults")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Pool.Address != cfg.Pool.Address || reloaded.Pool.Beneficiary != cfg.Pool.Beneficiary {
		t.Fatalf("reload generated new accounts")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	contents := fmt.Sprintf(`ValidatorKey = "x"
[Pool]
Address = "%s"
Beneficiary = "%s"
`, testAddress(0xAA), testAddress(0xBE))
	if _, err := Load(writeConfig(t, contents)); err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Pool: Pool{Address: testAddress(0xAA), Beneficiary: testAddress(0xBE)}}
		cfg.applyDefaults()
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config invalid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative deadline", func(c *Config) { c.Pool.DeadlineSeconds = -1 }},
		{"bad threshold", func(c *Config) { c.Pool.Threshold = "1e18" }},
		{"negative threshold", func(c *Config) { c.Pool.Threshold = "-1" }},
		{"missing pool address", func(c *Config) { c.Pool.Address = "" }},
		{"zero beneficiary", func(c *Config) { c.Pool.Beneficiary = "0x" + strings.Repeat("00", 20) }},
		{"same accounts", func(c *Config) { c.Pool.Beneficiary = c.Pool.Address }},
		{"wrong prefix", func(c *Config) {
			c.Pool.Address = crypto.NewAddress("nhb", make([]byte, 20)).String()
		}},
		{"negative rotation", func(c *Config) { c.Logging.MaxBackups = -1 }},
		{"negative rate", func(c *Config) { c.RateLimit.Burst = -2 }},
		{"sample ratio above one", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
		{"negative event capacity", func(c *Config) { c.Events.Capacity = -1 }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"auth short secret", func(c *Config) { c.Auth = Auth{Enabled: true, HMACSecret: "short"} }},
		{"negative clock skew", func(c *Config) { c.Auth.ClockSkewSeconds = -1 }},
		{"bad alloc balance", func(c *Config) {
			c.Alloc = []Alloc{{Address: testAddress(0x01), Balance: "abc"}}
		}},
		{"duplicate alloc", func(c *Config) {
			c.Alloc = []Alloc{
				{Address: testAddress(0x01), Balance: "1"},
				{Address: "0x" + strings.Repeat("01", 20), Balance: "2"},
			}
		}},
		{"empty rpc address", func(c *Config) { c.RPCAddress = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
