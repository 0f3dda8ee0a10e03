package config

import (
	"fmt"
	"strings"
)

const minAuthSecretLen = 16

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if c.Pool.DeadlineSeconds <= 0 {
		return fmt.Errorf("pool: DeadlineSeconds must be positive")
	}
	if _, err := parseUintAmount(c.Pool.Threshold); err != nil {
		return fmt.Errorf("pool: invalid Threshold: %w", err)
	}
	pool, err := parseAddress(c.Pool.Address)
	if err != nil {
		return fmt.Errorf("pool: invalid Address: %w", err)
	}
	beneficiary, err := parseAddress(c.Pool.Beneficiary)
	if err != nil {
		return fmt.Errorf("pool: invalid Beneficiary: %w", err)
	}
	if pool == beneficiary {
		return fmt.Errorf("pool: Address and Beneficiary must differ")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.Auth.Enabled && len(strings.TrimSpace(c.Auth.HMACSecret)) < minAuthSecretLen {
		return fmt.Errorf("auth: HMACSecret must be at least %d characters when Enabled", minAuthSecretLen)
	}
	if c.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("auth: ClockSkewSeconds must not be negative")
	}
	if c.Events.Capacity < 0 {
		return fmt.Errorf("events: Capacity must not be negative")
	}
	seen := make(map[[20]byte]struct{}, len(c.Alloc))
	for i, alloc := range c.Alloc {
		addr, err := parseAddress(alloc.Address)
		if err != nil {
			return fmt.Errorf("alloc[%d]: invalid Address: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("alloc[%d]: duplicate Address %s", i, alloc.Address)
		}
		seen[addr] = struct{}{}
		if _, err := parseUintAmount(alloc.Balance); err != nil {
			return fmt.Errorf("alloc[%d]: invalid Balance: %w", i, err)
		}
	}
	return nil
}
