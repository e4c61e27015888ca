package e2e

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"receipt-agent/internal/app"
	"receipt-agent/internal/common/config"
	"receipt-agent/internal/common/database"
	"receipt-agent/internal/employees"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/models"
	"receipt-agent/internal/pipeline"
)

var zapLog *zap.Logger

// TestMain skips the suite unless E2E=1; it needs Postgres, Redis and an OpenAI key.
func TestMain(m *testing.M) {
	if os.Getenv("E2E") != "1" {
		fmt.Println("skipping e2e suite: set E2E=1 to run against live services")
		os.Exit(0)
	}
	zapLog, _ = zap.NewDevelopment()
	code := m.Run()
	_ = zapLog.Sync()
	os.Exit(code)
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromFile("../../configs/config.yaml")
	require.NoError(t, err)

	// FORCE LOCALHOST FOR E2E TESTS
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.VectorStore.KeyPrefix = "e2e-" + uuid.NewString()[:8]
	return cfg
}

func TestFullE2E(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := loadConfig(t)
	if cfg.LLM.APIKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	assertServicesConnectivity(t, cfg)

	a, err := app.Build(ctx, app.Options{Config: cfg, ServiceName: "receipt-e2e", ZapLogger: zapLog, ConnectAttempts: 3, ConnectDelay: time.Second})
	require.NoError(t, err)
	defer a.Close(context.Background())

	seedEmployees(t, a)

	receipt := renderReceipt(t)
	first := submit(t, ctx, a, receipt)
	assert.NotEqual(t, pipeline.OutcomeFailed, first.Outcome, "first submission failed: %s", first.ErrorCode)
	assert.NotEmpty(t, first.ReceiptID)

	second := submit(t, ctx, a, receipt)
	assert.Equal(t, pipeline.OutcomeDuplicate, second.Outcome)
	require.NotNil(t, second.Verdict)
	assert.Equal(t, first.ReceiptID, second.Verdict.MatchedReceiptID)
	require.NotNil(t, second.Session)
	assert.True(t, second.Session.ShortCircuited)
	assert.Zero(t, second.Session.Turns)

	status, err := a.Stages.Get(ctx, second.FileID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, status.Stage)

	t.Log("✅ duplicate receipt short-circuited the agent")
}

func TestZeebeConnectivity(t *testing.T) {
	cfg := loadConfig(t)
	if !cfg.Camunda.Enabled {
		t.Skip("camunda disabled in config")
	}
	client, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.NewTopologyCommand().Send(context.Background())
	assert.NoError(t, err, "❌ Zeebe topology request failed")
}

func assertServicesConnectivity(t *testing.T, cfg *config.Config) {
	t.Log("🔍 Checking service connectivity...")

	db, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "❌ PostgreSQL connection failed")
	assert.NoError(t, db.Ping(context.Background()), "❌ PostgreSQL ping failed")
	db.Close()

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis client creation failed")
	assert.NoError(t, rdb.Ping(context.Background()), "❌ Redis ping failed")
	rdb.Close()
}

func seedEmployees(t *testing.T, a *app.App) {
	t.Helper()
	emps, err := employees.LoadSeed("../../configs/employees.yaml")
	require.NoError(t, err)
	_, err = a.Directory.Seed(context.Background(), emps)
	require.NoError(t, err)
}

func submit(t *testing.T, ctx context.Context, a *app.App, data []byte) *pipeline.Result {
	t.Helper()
	res, err := a.Processor.Process(ctx, extraction.Document{
		FileID:      uuid.NewString(),
		EmployeeID:  "E001",
		Data:        data,
		ContentType: "image/png",
	})
	require.NoError(t, err)
	return res
}

// renderReceipt draws a plain striped PNG; the vision model only needs stable input.
func renderReceipt(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if y%8 == 0 && x > 4 && x < 60 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
