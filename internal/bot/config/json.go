package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nsafonov/proofdesk/internal/flagx"
	"github.com/nsafonov/proofdesk/internal/timex"
)

// JsonConfig is the DTO for the JSON configuration file. Duration fields
// use timex.Duration, accepting both strings like "5m" and integer
// nanoseconds. Only fields present in the file override the defaults.
type JsonConfig struct {
	TransportToken    string  `json:"transport_token"`
	TransportEndpoint string  `json:"transport_endpoint"`
	ReviewerIDs       []int64 `json:"reviewer_ids"`
	AdminIDs          []int64 `json:"admin_ids"`

	StoreToken    string         `json:"store_token"`
	StoreEndpoint string         `json:"store_endpoint"`
	StoreTimeout  timex.Duration `json:"store_timeout"`

	PaymentsCollection    string `json:"payments_collection"`
	ProductsCollection    string `json:"products_collection"`
	UsersCollection       string `json:"users_collection"`
	PurchasesCollection   string `json:"purchases_collection"`
	DescriptorsCollection string `json:"descriptors_collection"`
	MethodsCollection     string `json:"methods_collection"`

	DescriptorCacheTTL  timex.Duration `json:"descriptor_cache_ttl"`
	MethodCacheTTL      timex.Duration `json:"method_cache_ttl"`
	EntitlementCacheTTL timex.Duration `json:"entitlement_cache_ttl"`
	AwaitProofTTL       timex.Duration `json:"await_proof_ttl"`
	PendingTTL          timex.Duration `json:"pending_ttl"`
	PendingMaxItems     int            `json:"pending_max_items"`

	WorkerCount     int            `json:"worker_count"`
	WorkerQueueSize int            `json:"worker_queue_size"`
	DrainTimeout    timex.Duration `json:"drain_timeout"`

	AuditDSN string `json:"audit_dsn"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent fields keep their
// current (default) values. An unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v timex.Duration) {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setString(&config.TransportToken, c.TransportToken)
	setString(&config.TransportEndpoint, c.TransportEndpoint)
	if len(c.ReviewerIDs) > 0 {
		config.ReviewerIDs = c.ReviewerIDs
	}
	if len(c.AdminIDs) > 0 {
		config.AdminIDs = c.AdminIDs
	}

	setString(&config.StoreToken, c.StoreToken)
	setString(&config.StoreEndpoint, c.StoreEndpoint)
	setDuration(&config.StoreTimeout, c.StoreTimeout)

	setString(&config.PaymentsCollection, c.PaymentsCollection)
	setString(&config.ProductsCollection, c.ProductsCollection)
	setString(&config.UsersCollection, c.UsersCollection)
	setString(&config.PurchasesCollection, c.PurchasesCollection)
	setString(&config.DescriptorsCollection, c.DescriptorsCollection)
	setString(&config.MethodsCollection, c.MethodsCollection)

	setDuration(&config.DescriptorCacheTTL, c.DescriptorCacheTTL)
	setDuration(&config.MethodCacheTTL, c.MethodCacheTTL)
	setDuration(&config.EntitlementCacheTTL, c.EntitlementCacheTTL)
	setDuration(&config.AwaitProofTTL, c.AwaitProofTTL)
	setDuration(&config.PendingTTL, c.PendingTTL)
	setInt(&config.PendingMaxItems, c.PendingMaxItems)

	setInt(&config.WorkerCount, c.WorkerCount)
	setInt(&config.WorkerQueueSize, c.WorkerQueueSize)
	setDuration(&config.DrainTimeout, c.DrainTimeout)

	setString(&config.AuditDSN, c.AuditDSN)

	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}
