package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lancechain/core/genesis"
	"lancechain/native/marketplace"
)

const (
	DefaultRPCAddress  = ":8545"
	DefaultDataDir     = "./lance-data"
	DefaultNetworkName = "lance-local"
	DefaultChainID     = 7777
)

type Config struct {
	RPCAddress  string    `toml:"RPCAddress"`
	DataDir     string    `toml:"DataDir"`
	ChainID     uint64    `toml:"ChainID"`
	NetworkName string    `toml:"NetworkName"`
	Rent        Rent      `toml:"rent"`
	Genesis     Genesis   `toml:"genesis"`
	RPC         RPC       `toml:"rpc"`
	Indexer     Indexer   `toml:"indexer"`
	Receipts    Receipts  `toml:"receipts"`
	Log         Log       `toml:"log"`
	Telemetry   Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		RPCAddress:  DefaultRPCAddress,
		DataDir:     DefaultDataDir,
		ChainID:     DefaultChainID,
		NetworkName: DefaultNetworkName,
		Rent: Rent{
			AccountOverhead: marketplace.DefaultAccountOverhead,
			UnitsPerByte:    marketplace.DefaultUnitsPerByte,
		},
		Log: Log{Env: "dev", Level: "info", MaxSizeMB: 100, MaxBackups: 3},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = DefaultNetworkName
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = DefaultRPCAddress
	}
	if c.Genesis.Allocations == nil {
		c.Genesis.Allocations = []Allocation{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.applyDefaults()
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

// RentParams converts the rent section.
func (c *Config) RentParams() marketplace.RentParams {
	return marketplace.RentParams{
		AccountOverhead: c.Rent.AccountOverhead,
		UnitsPerByte:    c.Rent.UnitsPerByte,
	}
}

// GenesisSpec resolves the genesis section. Relative genesis files are
// resolved against baseDir.
func (c *Config) GenesisSpec(baseDir string) (*genesis.Spec, error) {
	if file := strings.TrimSpace(c.Genesis.File); file != "" {
		if !filepath.IsAbs(file) && baseDir != "" {
			file = filepath.Join(baseDir, file)
		}
		spec, err := genesis.LoadSpec(file)
		if err != nil {
			return nil, err
		}
		if spec.ChainID == 0 {
			spec.ChainID = c.ChainID
		}
		return spec, nil
	}
	spec := &genesis.Spec{
		GenesisTime: c.Genesis.Time,
		ChainID:     c.ChainID,
		Alloc:       make(map[string]string, len(c.Genesis.Allocations)),
	}
	for _, alloc := range c.Genesis.Allocations {
		addr := strings.TrimSpace(alloc.Address)
		if _, dup := spec.Alloc[addr]; dup {
			return nil, fmt.Errorf("genesis: duplicate allocation for %s", addr)
		}
		spec.Alloc[addr] = strings.TrimSpace(alloc.Balance)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// ReceiptsPath returns the receipts database file, defaulting into DataDir.
func (c *Config) ReceiptsPath() string {
	if p := strings.TrimSpace(c.Receipts.Path); p != "" {
		return p
	}
	return filepath.Join(c.DataDir, "receipts.db")
}

// ChainPath is the LevelDB directory holding state and headers.
func (c *Config) ChainPath() string {
	return filepath.Join(c.DataDir, "chain")
}
