package config

import (
	"fmt"
	"math/big"
	"strings"

	"lancechain/core/genesis"
)

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("ChainID must be positive")
	}
	rent := c.RentParams()
	if rent.AccountOverhead == 0 || rent.UnitsPerByte == 0 {
		return fmt.Errorf("rent: parameters must be positive")
	}
	for i, alloc := range c.Genesis.Allocations {
		if _, err := genesis.ParseBech32Account(strings.TrimSpace(alloc.Address)); err != nil {
			return fmt.Errorf("genesis.Allocations[%d]: %w", i, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return fmt.Errorf("genesis.Allocations[%d]: invalid balance %q", i, alloc.Balance)
		}
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	return nil
}
