package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type accountPruner interface {
	DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job prunes auth accounts that were provisioned during a signup fallback but
// never confirmed. Their derived credentials stay reusable: the next login
// for the same member number simply provisions again.
type Job struct {
	accounts  accountPruner
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewUnconfirmedAccountsJob(accounts accountPruner, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		accounts:  accounts,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.accounts == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.accounts.DeleteUnconfirmedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup unconfirmed accounts: %w", err)
	}
	if deleted > 0 {
		j.logger.Info("cleanup unconfirmed accounts completed", zap.Int64("deleted", deleted))
	}
	return nil
}
