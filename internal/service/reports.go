package service

import (
	"context"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
)

const topProductsLimit = 10

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	today := s.today()
	from, to := s.dayBounds(today)

	total, count, err := s.repo.SalesSummary(ctx, from, to)
	if err != nil {
		return domain.Dashboard{}, err
	}
	top, err := s.repo.TopProducts(ctx, topProductsLimit)
	if err != nil {
		return domain.Dashboard{}, err
	}
	low, err := s.repo.ListLowStockProducts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		Date:            from.Format("2006-01-02"),
		SalesTodayTotal: total,
		SalesTodayCount: count,
		TopProducts:     top,
		LowStockCount:   len(low),
		LowStock:        low,
	}
	if len(top) > 0 {
		best := top[0]
		dash.BestSeller = &best
	}
	return dash, nil
}

func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return s.repo.Snapshot(ctx)
}

func (s *Service) SnapshotStats(ctx context.Context) (domain.SnapshotStats, error) {
	return s.repo.Stats(ctx)
}

// RestoreSnapshot replaces all persisted state with snap in one transaction.
func (s *Service) RestoreSnapshot(ctx context.Context, snap domain.Snapshot) error {
	err := s.guard.Run(ctx, "restore snapshot", func(tx store.Tx) error {
		return tx.ReplaceAll(ctx, snap)
	})
	if err != nil {
		return err
	}
	if err := s.statusCache.InvalidateAll(ctx); err != nil {
		s.log.Warn().Err(err).Msg("status cache flush failed")
	}
	s.audit(ctx, "backup_restore", "snapshot", snap.Timestamp.Format("20060102T150405")).
		Int("products", len(snap.Products)).
		Int("sales", len(snap.Sales)).
		Msg("snapshot restored")
	return nil
}
