package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/metrics"
)

// Purger removes soft-deleted vaults last changed before cutoff.
type Purger interface {
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresPurger purges the vaults table.
type PostgresPurger struct {
	DB *sql.DB
}

func (p PostgresPurger) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.DB.ExecContext(ctx, `
        DELETE FROM vaults
         WHERE deleted = true
           AND updated_at < $1
    `, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartSoftDeleteCleaner purges soft-deleted vaults older than retention
// every interval until ctx is done.
func StartSoftDeleteCleaner(
	ctx context.Context,
	p Purger,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := p.PurgeDeleted(ctx, time.Now().Add(-retention).UTC())
				if err != nil {
					log.Error("failed to clean soft-deleted vaults", zap.Error(err))
					continue
				}
				if rows > 0 {
					metrics.PurgedVaultsTotal.Add(float64(rows))
					log.Info("cleaned soft-deleted vaults", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
