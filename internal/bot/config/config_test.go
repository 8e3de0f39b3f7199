package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "https://api.telegram.org", c.TransportEndpoint)
	assert.Equal(t, 30*time.Second, c.StoreTimeout)
	assert.Equal(t, 5*time.Minute, c.DescriptorCacheTTL)
	assert.Equal(t, 5*time.Minute, c.EntitlementCacheTTL)
	assert.Equal(t, 30*time.Minute, c.AwaitProofTTL)
	assert.Equal(t, 24*time.Hour, c.PendingTTL)
	assert.Equal(t, 1000, c.PendingMaxItems)
	assert.Equal(t, 4, c.WorkerCount)
	assert.Equal(t, 64, c.WorkerQueueSize)
	assert.Equal(t, 15*time.Second, c.DrainTimeout)
	assert.Empty(t, c.TransportToken, "no token default")
	assert.Empty(t, c.AuditDSN, "audit disabled by default")
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, map[string]any{
		"transport_token":       "bot-token",
		"reviewer_ids":          []int64{500, 501},
		"store_token":           "secret",
		"store_endpoint":        "https://api.notion.com",
		"store_timeout":         "10s",
		"payments_collection":   "db-payments",
		"entitlement_cache_ttl": "2m",
		"worker_count":          8,
		"audit_dsn":             "postgres://audit",
	})

	t.Run("loads from json, keeps defaults for absent fields", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "bot-token", cfg.TransportToken)
		assert.Equal(t, []int64{500, 501}, cfg.ReviewerIDs)
		assert.Equal(t, "secret", cfg.StoreToken)
		assert.Equal(t, "https://api.notion.com", cfg.StoreEndpoint)
		assert.Equal(t, 10*time.Second, cfg.StoreTimeout)
		assert.Equal(t, "db-payments", cfg.PaymentsCollection)
		assert.Equal(t, 2*time.Minute, cfg.EntitlementCacheTTL)
		assert.Equal(t, 8, cfg.WorkerCount)
		assert.Equal(t, "postgres://audit", cfg.AuditDSN)

		// absent in JSON, defaults survive
		assert.Equal(t, "https://api.telegram.org", cfg.TransportEndpoint)
		assert.Equal(t, 24*time.Hour, cfg.PendingTTL)
		assert.Equal(t, 64, cfg.WorkerQueueSize)
	})

	t.Run("no config flag leaves config untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)
		assert.Empty(t, cfg.TransportToken)
		assert.Equal(t, 4, cfg.WorkerCount)
	})
}

func Test_parseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin",
		"-t", "flag-token",
		"-e", "https://store.example",
		"-r", "500, 501",
		"-w", "2",
	}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, "flag-token", cfg.TransportToken)
	assert.Equal(t, "https://store.example", cfg.StoreEndpoint)
	assert.Equal(t, []int64{500, 501}, cfg.ReviewerIDs)
	assert.Equal(t, 2, cfg.WorkerCount)
	// untouched by flags
	assert.Equal(t, "https://api.telegram.org", cfg.TransportEndpoint)
}

func Test_parseIDList(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3}, parseIDList("1,2,3"))
	assert.Equal(t, []int64{5}, parseIDList(" 5 "))
	assert.Equal(t, []int64{7}, parseIDList("7,oops"))
	assert.Empty(t, parseIDList("oops"))
}
