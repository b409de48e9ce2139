package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/database"
	"github.com/opexlabs/formscore/internal/models"
	"github.com/opexlabs/formscore/internal/services"
)

func setupMaintenanceDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestRunOncePrunesAuditAndCountsExpired(t *testing.T) {
	db := setupMaintenanceDB(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	// One audit row inside retention, one far past it.
	recent := models.AuditLog{Action: "permission.grant", Result: "success", CreatedAt: now.AddDate(0, 0, -5)}
	stale := models.AuditLog{Action: "permission.grant", Result: "success", CreatedAt: now.AddDate(0, 0, -40)}
	require.NoError(t, db.Create(&recent).Error)
	require.NoError(t, db.Create(&stale).Error)

	pastExpiry := now.Add(-time.Hour)
	futureExpiry := now.Add(time.Hour)
	for _, g := range []models.PermissionGrant{
		{ID: "g-expired", UserID: "u-1", Level: "view", Active: true, ExpiresAt: &pastExpiry},
		{ID: "g-live", UserID: "u-1", Level: "view", Active: true, ExpiresAt: &futureExpiry},
		{ID: "g-revoked", UserID: "u-1", Level: "view", Active: false, ExpiresAt: &pastExpiry},
	} {
		g.GrantedBy = "admin-1"
		g.GrantedAt = now.Add(-24 * time.Hour)
		require.NoError(t, db.Create(&g).Error)
	}

	cleaner := NewCleaner(db, audit,
		WithNow(func() time.Time { return now }),
		WithAuditRetentionDays(30),
	)
	require.NoError(t, cleaner.RunOnce(ctx))

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.EqualValues(t, 1, auditCount, "only the stale audit row is pruned")

	count, err := CountExpiredActiveGrants(ctx, db, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, count, "revoked and unexpired grants do not count")

	// Grants themselves are never mutated by maintenance.
	var grantCount int64
	require.NoError(t, db.Model(&models.PermissionGrant{}).Count(&grantCount).Error)
	require.EqualValues(t, 3, grantCount)
}

func TestCleanerStartAndStop(t *testing.T) {
	db := setupMaintenanceDB(t)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(db, audit, WithSchedule("@every 1h"))
	require.NoError(t, cleaner.Start())

	stop := cleaner.Stop()
	select {
	case <-stop.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	db := setupMaintenanceDB(t)

	cleaner := NewCleaner(db, nil, WithSchedule("not-a-spec"))
	require.Error(t, cleaner.Start())
}
