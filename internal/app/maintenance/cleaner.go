package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/models"
	"github.com/opexlabs/formscore/internal/services"
	"github.com/opexlabs/formscore/pkg/logger"
	"github.com/opexlabs/formscore/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultSchedule           = "@hourly"
)

// Cleaner coordinates background maintenance: pruning stale audit logs and
// refreshing the expired-grant gauge. It never mutates grants themselves;
// expiry is evaluated at read time and revoked records stay as audit state.
type Cleaner struct {
	db        *gorm.DB
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int
	schedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedule overrides the cron specification for maintenance runs.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:        db,
		audit:     audit,
		now:       time.Now,
		retention: defaultAuditRetentionDays,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the maintenance job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all maintenance routines sequentially. Also used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.audit != nil && c.retention > 0 {
		cutoff := c.now().AddDate(0, 0, -c.retention)
		removed, err := c.audit.PruneOlderThan(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if removed > 0 {
			c.log.Info("audit logs pruned", zap.Int64("removed", removed))
		}
	}

	if c.db != nil {
		count, err := CountExpiredActiveGrants(ctx, c.db, c.now())
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			metrics.ExpiredGrants.Set(float64(count))
		}
	}

	return errs
}

// CountExpiredActiveGrants counts grants still flagged active whose expiry
// has passed. They are invisible to the evaluator already; the count exposes
// how much dead weight the table carries.
func CountExpiredActiveGrants(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("count expired grants: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int64
	if err := db.WithContext(ctx).
		Model(&models.PermissionGrant{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count expired grants: %w", err)
	}

	return count, nil
}
