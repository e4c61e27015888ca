package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
app:
  name: receipt-agent-test
database:
  postgres:
    host: localhost
    database: expenses
    user: ${TEST_PG_USER}
  redis:
    address: localhost:6379
dedupe:
  threshold: 0.96
  categories:
    TRAVEL_EXPENSE: 0.97
workers:
  process-receipt:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_PG_USER", "ledger")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "receipt-agent-test", cfg.App.Name)
	assert.NotEmpty(t, cfg.Source)
	assert.Equal(t, "ledger", cfg.Database.Postgres.User)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 0.96, cfg.Dedupe.Threshold)
	assert.Equal(t, 0.97, cfg.Dedupe.Categories["travel_expense"])

	assert.Equal(t, "redis", cfg.VectorStore.Backend)
	assert.Equal(t, 10, cfg.Agent.MaxTurns)
	assert.Equal(t, "tagged", cfg.Agent.ResponseFormat)
	assert.Equal(t, 2.5, cfg.Office.RadiusKm)
	assert.Equal(t, 17.4508, cfg.Office.Lat)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)

	w := GetWorkerConfig(cfg, "process-receipt")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 3, w.MaxRetries)

	fallback := GetWorkerConfig(cfg, "unknown")
	assert.Equal(t, cfg.Camunda.MaxJobsActive, fallback.MaxJobsActive)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing redis",
			body:    "database:\n  postgres:\n    host: db\n",
			wantErr: "database.redis.address is required",
		},
		{
			name:    "threshold out of range",
			body:    "database:\n  postgres:\n    host: db\n  redis:\n    address: r:6379\ndedupe:\n  threshold: 1.5\n",
			wantErr: "dedupe.threshold",
		},
		{
			name:    "unknown backend",
			body:    "database:\n  postgres:\n    host: db\n  redis:\n    address: r:6379\nvector_store:\n  backend: faiss\n",
			wantErr: "vector_store.backend",
		},
		{
			name:    "elasticsearch without addresses",
			body:    "database:\n  postgres:\n    host: db\n  redis:\n    address: r:6379\nvector_store:\n  backend: elasticsearch\n",
			wantErr: "database.elasticsearch.addresses",
		},
		{
			name:    "camunda enabled without broker",
			body:    "camunda:\n  enabled: true\ndatabase:\n  postgres:\n    host: db\n  redis:\n    address: r:6379\n",
			wantErr: "camunda.broker_address",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatch_ReloadsThreshold(t *testing.T) {
	path := writeConfig(t, baseYAML)

	var latest atomic.Value
	require.NoError(t, Watch(path, func(cfg *Config) {
		latest.Store(cfg.Dedupe.Threshold)
	}, nil))

	updated := []byte("database:\n  postgres:\n    host: localhost\n  redis:\n    address: localhost:6379\ndedupe:\n  threshold: 0.9\n")
	require.NoError(t, os.WriteFile(path, updated, 0o600))

	require.Eventually(t, func() bool {
		v, ok := latest.Load().(float64)
		return ok && v == 0.9
	}, 5*time.Second, 50*time.Millisecond)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
