package config

// Rent prices record storage. Zero values fall back to the network defaults.
type Rent struct {
	AccountOverhead uint64 `toml:"AccountOverhead"`
	UnitsPerByte    uint64 `toml:"UnitsPerByte"`
}

// Allocation credits Balance native units to Address at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Genesis selects the initial ledger. File takes precedence over inline
// allocations.
type Genesis struct {
	File        string       `toml:"File"`
	Time        string       `toml:"Time"`
	Allocations []Allocation `toml:"Allocations"`
}

// RPC controls authentication and throttling of transaction submission.
type RPC struct {
	JWTSecret         string  `toml:"JWTSecret"`
	Issuer            string  `toml:"Issuer"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Indexer enables the relational read model when DSN is set.
type Indexer struct {
	DSN string `toml:"DSN"`
}

type Receipts struct {
	Path string `toml:"Path"`
}

type Log struct {
	Env        string `toml:"Env"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Traces      bool              `toml:"Traces"`
	Metrics     bool              `toml:"Metrics"`
	Headers     map[string]string `toml:"Headers"`
	SampleRatio float64           `toml:"SampleRatio"`
}
