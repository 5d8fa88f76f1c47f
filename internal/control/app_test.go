package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/config"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/health"
)

func testConfig(t *testing.T, driver string) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Storage.Driver = driver
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "audit.db")
	cfg.Identity.ActorID = "analyst-7"
	return *cfg
}

func TestApp_Lifecycle(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(t, config.DriverMemory))
	require.NoError(t, err)

	require.NoError(t, app.Start(ctx))
	require.Error(t, app.Start(ctx), "second start must be rejected")

	report := app.Health(ctx)
	assert.Equal(t, health.StatusHealthy, report.SystemStatus)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(stopCtx))
	require.NoError(t, app.Stop(stopCtx), "stop is idempotent")
}

func TestApp_StopWithoutStart(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t, config.DriverMemory))
	require.NoError(t, err)
	require.NoError(t, app.Stop(context.Background()))
}

func TestApp_SubmitRejectedParameter(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(t, config.DriverMemory))
	require.NoError(t, err)
	defer func() { _ = app.Stop(ctx) }()

	res, out := app.Submit(ctx, "degreesOfFreedom", 0)
	assert.False(t, res.Valid)
	require.NotNil(t, out)
	assert.Equal(t, domain.CategoryValidation, out.Category)
	assert.False(t, out.Handled)
	require.NotNil(t, out.Notification)
	assert.Equal(t, domain.NotifyWarning, out.Notification.Level)

	entries, err := app.Audit.Query(ctx, audit.Criteria{Actions: []string{"error_handled"}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditValidation, entries[0].Category)
	assert.Equal(t, domain.ResultFailed, entries[0].Result)
	assert.Equal(t, "analyst-7", entries[0].ActorID)
}

func TestApp_SubmitAcceptedParameter(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(t, config.DriverMemory))
	require.NoError(t, err)
	defer func() { _ = app.Stop(ctx) }()

	res, out := app.Submit(ctx, "confidenceLevel", 0.95)
	assert.True(t, res.Valid)
	assert.Nil(t, out)
}

func TestApp_ChainSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.DriverSQLite)

	first, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	for _, v := range []any{0, -1, 1.5} {
		first.Submit(ctx, "sampleSize", v)
	}
	before := len(first.Audit.Entries())
	require.NoError(t, first.Stop(ctx))

	second, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = second.Stop(ctx) }()

	assert.Len(t, second.Audit.Entries(), before)
	second.Submit(ctx, "alpha", 2)

	res, err := second.Audit.VerifyChainIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Greater(t, len(second.Audit.Entries()), before)
	assert.Equal(t, len(second.Audit.Entries()), res.Checked)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, "etcd")
	_, err := OpenStore(context.Background(), cfg)
	require.Error(t, err)
}
