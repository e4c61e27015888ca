package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"receipt-agent/internal/common/config"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/dedupe"
	"receipt-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetryWithBackoff(t *testing.T) {
	log := zaptest.NewLogger(t)

	calls := 0
	err := RetryWithBackoff(func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond, log, "test connection")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithBackoff(func() error {
		calls++
		return errors.New("connection refused")
	}, 2, time.Millisecond, log, "test connection")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "test connection failed after 2 attempts")
}

func TestReloadThresholds(t *testing.T) {
	th, err := dedupe.NewThresholds(0.95, nil)
	require.NoError(t, err)
	a := &App{Thresholds: th, Logger: logger.NewTestLogger(t)}

	a.ReloadThresholds(&config.Config{Dedupe: config.DedupeConfig{
		Threshold:  0.9,
		Categories: map[string]float64{"travel_expense": 0.97},
	}})
	assert.Equal(t, 0.9, th.For(models.CategoryFood))
	assert.Equal(t, 0.97, th.For(models.CategoryTravel))

	a.ReloadThresholds(&config.Config{Dedupe: config.DedupeConfig{Threshold: 1.5}})
	assert.Equal(t, 0.9, th.For(models.CategoryFood))
}

func TestBuild_UnknownBackendFailsFast(t *testing.T) {
	a := &App{Config: &config.Config{VectorStore: config.VectorStoreConfig{Backend: "cassandra"}}, Logger: logger.NewNoOpLogger()}
	_, err := a.buildStore(context.Background(), Options{ConnectAttempts: 1})
	assert.ErrorContains(t, err, "unknown vector store backend")
}
