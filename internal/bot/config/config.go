// Package config handles configuration for the bot: defaults, JSON
// overlay, and command-line flags, applied in that order.
package config

import "time"

// Config holds the runtime settings for the bot process.
type Config struct {
	// chat transport
	TransportToken    string
	TransportEndpoint string
	ReviewerIDs       []int64
	AdminIDs          []int64

	// external record store
	StoreToken    string
	StoreEndpoint string
	StoreTimeout  time.Duration

	// record-store collection ids
	PaymentsCollection    string
	ProductsCollection    string
	UsersCollection       string
	PurchasesCollection   string
	DescriptorsCollection string
	MethodsCollection     string

	// caches and stores
	DescriptorCacheTTL  time.Duration
	MethodCacheTTL      time.Duration
	EntitlementCacheTTL time.Duration
	AwaitProofTTL       time.Duration
	PendingTTL          time.Duration
	PendingMaxItems     int

	// background worker pool
	WorkerCount     int
	WorkerQueueSize int
	DrainTimeout    time.Duration

	// audit trail; empty DSN disables it
	AuditDSN string

	// proof archival; empty bucket disables it
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults. Tokens and
// collection ids have no sensible defaults and must come from JSON or flags.
func (c *Config) LoadDefaults() {
	c.TransportEndpoint = "https://api.telegram.org"
	c.StoreTimeout = 30 * time.Second
	c.DescriptorCacheTTL = 5 * time.Minute
	c.MethodCacheTTL = 5 * time.Minute
	c.EntitlementCacheTTL = 5 * time.Minute
	c.AwaitProofTTL = 30 * time.Minute
	c.PendingTTL = 24 * time.Hour
	c.PendingMaxItems = 1000
	c.WorkerCount = 4
	c.WorkerQueueSize = 64
	c.DrainTimeout = 15 * time.Second
	c.S3Region = "us-east-1"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
