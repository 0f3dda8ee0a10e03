package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"stakerchain/crypto"
)

// PoolParams are the parsed runtime values of the [Pool] section.
type PoolParams struct {
	Address     [20]byte
	Beneficiary [20]byte
	Deadline    time.Duration
	Threshold   *big.Int
}

// GenesisAlloc is a parsed [[Alloc]] entry.
type GenesisAlloc struct {
	Address [20]byte
	Balance *big.Int
}

// PoolParams parses the pool section into runtime values.
func (c *Config) PoolParams() (PoolParams, error) {
	var params PoolParams
	var err error
	if params.Address, err = parseAddress(c.Pool.Address); err != nil {
		return params, fmt.Errorf("invalid pool.Address: %w", err)
	}
	if params.Beneficiary, err = parseAddress(c.Pool.Beneficiary); err != nil {
		return params, fmt.Errorf("invalid pool.Beneficiary: %w", err)
	}
	if params.Threshold, err = parseUintAmount(c.Pool.Threshold); err != nil {
		return params, fmt.Errorf("invalid pool.Threshold: %w", err)
	}
	params.Deadline = time.Duration(c.Pool.DeadlineSeconds) * time.Second
	return params, nil
}

// GenesisAllocs parses the [[Alloc]] entries in declaration order.
func (c *Config) GenesisAllocs() ([]GenesisAlloc, error) {
	out := make([]GenesisAlloc, 0, len(c.Alloc))
	for i, alloc := range c.Alloc {
		addr, err := parseAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc[%d].Address: %w", i, err)
		}
		balance, err := parseUintAmount(alloc.Balance)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc[%d].Balance: %w", i, err)
		}
		out = append(out, GenesisAlloc{Address: addr, Balance: balance})
	}
	return out, nil
}

func parseAddress(raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	if addr == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", raw)
	}
	return value, nil
}
