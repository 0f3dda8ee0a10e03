package config

// Pool defines the single pooled-funding instance served by the daemon.
type Pool struct {
	// Address is the custody account holding staked funds.
	Address string `toml:"Address"`
	// Beneficiary receives the pool when Execute succeeds.
	Beneficiary     string `toml:"Beneficiary"`
	DeadlineSeconds int64  `toml:"DeadlineSeconds"`
	// Threshold is a base-10 amount in base units.
	Threshold string `toml:"Threshold"`
}

type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Telemetry configures the OTLP exporters. Headers uses the OTEL
// "key=value,key2=value2" form.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
	// SampleRatio keeps this fraction of new traces; 0 keeps all.
	SampleRatio float64 `toml:"SampleRatio"`
}

// RateLimit caps JSON-RPC calls per client. A zero RequestsPerMinute disables
// throttling. TrustProxyHeaders keys clients on X-Real-IP / X-Forwarded-For;
// enable it only behind a proxy that overwrites them.
type RateLimit struct {
	RequestsPerMinute int  `toml:"RequestsPerMinute"`
	Burst             int  `toml:"Burst"`
	TrustProxyHeaders bool `toml:"TrustProxyHeaders"`
}

// Auth guards staker_stake, staker_execute and staker_withdraw with HS256
// bearer tokens.
type Auth struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
	// Scope must be granted by the token when set.
	Scope            string `toml:"Scope"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds"`
}

// Events configures event retention. Capacity bounds the in-memory log used
// for replay; ArchiveDSN, when set, persists every event to SQLite (a file
// path) or Postgres (a postgres:// URL).
type Events struct {
	Capacity   int    `toml:"Capacity"`
	ArchiveDSN string `toml:"ArchiveDSN"`
}

// Alloc credits an account once when the data directory is first initialised.
type Alloc struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}
