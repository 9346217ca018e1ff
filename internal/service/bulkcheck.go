package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"boostpanel/internal/cache"
	"boostpanel/internal/config"
	"boostpanel/internal/models"
	"boostpanel/internal/provider"
	"boostpanel/internal/repository"
)

// BulkCheckService is the reconciliation coordinator. Each cycle it decides
// between delegating the whole eligible set to the remote aggregator or
// polling the panels in-process, and on any delegation transport failure it
// finishes the cycle in-process over whatever the aggregator has not yet
// handled, so no cycle silently checks nothing.
type BulkCheckService struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	Config   config.BulkCheckConfig
	Flags    *SystemSettingsService
	Cache    cache.Store
	Client   *provider.BulkClient
	Fallback *StatusSyncService
}

// RunScheduled is the cron entry point.
func (b *BulkCheckService) RunScheduled(ctx context.Context) {
	if b == nil || b.Fallback == nil {
		return
	}
	if b.Flags != nil && !b.Flags.IsEnabled(ctx, FeatureStatusSync, true) {
		return
	}
	res, err := b.RunOnce(ctx)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Warn("reconciliation cycle failed", zap.Error(err))
		}
		return
	}
	if b.Logger != nil && (res.Checked > 0 || len(res.Errors) > 0) {
		b.Logger.Info("reconciliation cycle finished",
			zap.Int("checked", res.Checked),
			zap.Int("updated", res.Updated),
			zap.Int("refunded", res.Refunded),
			zap.Int("errors", len(res.Errors)))
	}
}

func (b *BulkCheckService) RunOnce(ctx context.Context) (*SyncResult, error) {
	if b == nil || b.Repo == nil || b.Fallback == nil {
		return &SyncResult{}, nil
	}
	limit := b.Fallback.Config.BatchLimit
	if limit <= 0 {
		limit = 500
	}
	orders, err := b.Repo.ListOrdersForStatusCheck(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	eligible := make([]models.Order, 0, len(orders))
	skipped := 0
	for i := range orders {
		if b.Fallback.isDue(&orders[i], now, b.Fallback.Config.MinInterval) {
			eligible = append(eligible, orders[i])
		} else {
			skipped++
		}
	}

	var res *SyncResult
	if b.shouldDelegate(ctx, len(eligible)) {
		res = b.delegate(ctx, eligible)
	} else {
		res = b.Fallback.SyncOrders(ctx, eligible)
	}
	res.Skipped += skipped
	return res, nil
}

// shouldDelegate gates on configuration, the feature switch, the probe's
// cached reachability verdict, and the minimum set size that makes a remote
// round trip worth it.
func (b *BulkCheckService) shouldDelegate(ctx context.Context, eligible int) bool {
	if b.Client == nil || b.Config.BaseURL == "" {
		return false
	}
	if b.Flags != nil && !b.Flags.IsEnabled(ctx, FeatureBulkCheck, true) {
		return false
	}
	minOrders := b.Config.MinOrders
	if minOrders <= 0 {
		minOrders = 20
	}
	if eligible < minOrders {
		return false
	}
	return DelegationAvailable(ctx, b.Cache)
}

// delegate submits the eligible set in sequential sub-batches. A transport
// failure on any sub-batch abandons delegation and finishes the cycle
// in-process, re-filtering first so orders earlier sub-batches already
// handled are not polled twice; per-order errors reported by the aggregator
// are just aggregated, the remaining sub-batches still go out.
func (b *BulkCheckService) delegate(ctx context.Context, orders []models.Order) *SyncResult {
	batchSize := b.Config.BatchSize
	if batchSize <= 0 || batchSize > provider.DefaultBulkBatchSize {
		batchSize = provider.DefaultBulkBatchSize
	}

	res := &SyncResult{}
	for start := 0; start < len(orders); start += batchSize {
		end := start + batchSize
		if end > len(orders) {
			end = len(orders)
		}
		ids := make([]string, 0, end-start)
		for _, o := range orders[start:end] {
			ids = append(ids, o.ID)
		}

		out, err := b.Client.CheckOrders(ctx, ids)
		if err != nil {
			if b.Logger != nil {
				b.Logger.Warn("bulk delegation failed, falling back to in-process",
					zap.Int("submitted", start),
					zap.Int("eligible", len(orders)),
					zap.Error(err))
			}
			// Mark unavailable so the next cycle skips the doomed attempt.
			if b.Cache != nil {
				_ = b.Cache.Set(ctx, delegationAvailableKey, []byte("0"), time.Minute)
			}
			fb := b.Fallback.SyncOrders(ctx, b.refreshEligible(ctx, orders))
			res.Checked += fb.Checked
			res.Updated += fb.Updated
			res.Refunded += fb.Refunded
			res.Errors = append(res.Errors, fb.Errors...)
			return res
		}

		res.Checked += out.Checked
		res.Updated += out.Updated
		for _, e := range out.Errors {
			res.Errors = append(res.Errors, SyncOrderError{OrderID: e.OrderID, Error: e.Error})
		}
	}
	return res
}

// refreshEligible re-reads the set and drops orders no longer due. After a
// partial delegation the aggregator has touched last_status_check on what it
// handled, so those fall out here. An order that cannot be re-read stays in,
// at worst it gets polled again.
func (b *BulkCheckService) refreshEligible(ctx context.Context, orders []models.Order) []models.Order {
	now := time.Now().UTC()
	out := make([]models.Order, 0, len(orders))
	for i := range orders {
		fresh, err := b.Repo.GetOrderByID(ctx, orders[i].ID)
		if err != nil || fresh == nil {
			out = append(out, orders[i])
			continue
		}
		if b.Fallback.isDue(fresh, now, b.Fallback.Config.MinInterval) {
			out = append(out, *fresh)
		}
	}
	return out
}
