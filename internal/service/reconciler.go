package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boostpanel/internal/config"
	"boostpanel/internal/models"
	"boostpanel/internal/provider"
	"boostpanel/internal/repository"
	"boostpanel/internal/status"
)

type SyncOrderError struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

type SyncResult struct {
	Checked  int              `json:"checked"`
	Updated  int              `json:"updated"`
	Refunded int              `json:"refunded"`
	Skipped  int              `json:"skipped"`
	Errors   []SyncOrderError `json:"errors"`
}

// StatusSyncService polls the upstream panels for order status and commits
// observed transitions. Batches run as sequential windows with concurrent
// fetches inside each window, so at most window_size requests are in flight
// against the panels at any moment. One order failing never aborts the rest
// of the batch.
type StatusSyncService struct {
	Repo       repository.Repository
	Logger     *zap.Logger
	Config     config.StatusSyncConfig
	Flags      *SystemSettingsService
	Settlement *SettlementService
	History    *HistoryWriter
	Clients    map[provider.Key]provider.StatusClient
}

// RunScheduled is the cron entry point: honors the feature switch and the
// configured recheck floor.
func (s *StatusSyncService) RunScheduled(ctx context.Context) {
	if s == nil || s.Repo == nil {
		return
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureStatusSync, true) {
		return
	}
	res, err := s.RunOnce(ctx, s.Config.MinInterval)
	if err != nil {
		s.logWarn("status sync run failed", err)
		return
	}
	if s.Logger != nil && (res.Checked > 0 || len(res.Errors) > 0) {
		s.Logger.Info("status sync run finished",
			zap.Int("checked", res.Checked),
			zap.Int("updated", res.Updated),
			zap.Int("refunded", res.Refunded),
			zap.Int("errors", len(res.Errors)))
	}
}

// RunOnce scans the non-terminal orders, filters to those due for a recheck,
// and reconciles them. minInterval <= 0 disables the recency check, which is
// how forced rechecks are expressed.
func (s *StatusSyncService) RunOnce(ctx context.Context, minInterval time.Duration) (*SyncResult, error) {
	if s == nil || s.Repo == nil {
		return &SyncResult{}, nil
	}
	limit := s.Config.BatchLimit
	if limit <= 0 {
		limit = 500
	}
	orders, err := s.Repo.ListOrdersForStatusCheck(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	eligible := make([]models.Order, 0, len(orders))
	skipped := 0
	for i := range orders {
		if s.isDue(&orders[i], now, minInterval) {
			eligible = append(eligible, orders[i])
		} else {
			skipped++
		}
	}

	res := s.SyncOrders(ctx, eligible)
	res.Skipped += skipped
	return res, nil
}

// SyncOrders reconciles an already-filtered set of orders in windows.
func (s *StatusSyncService) SyncOrders(ctx context.Context, orders []models.Order) *SyncResult {
	res := &SyncResult{}
	if s == nil || s.Repo == nil || len(orders) == 0 {
		return res
	}
	window := s.Config.WindowSize
	if window <= 0 {
		window = 5
	}

	var mu sync.Mutex
	for start := 0; start < len(orders); start += window {
		end := start + window
		if end > len(orders) {
			end = len(orders)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			order := orders[i]
			g.Go(func() error {
				updated, refunded, err := s.syncOrder(gctx, &order)
				mu.Lock()
				res.Checked++
				if updated {
					res.Updated++
				}
				if refunded {
					res.Refunded++
				}
				if err != nil {
					res.Errors = append(res.Errors, SyncOrderError{OrderID: order.ID, Error: err.Error()})
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			break
		}
	}
	return res
}

// CheckOrder reconciles a single order on demand. force bypasses the
// recheck floor; eligibility otherwise follows the batch rules.
func (s *StatusSyncService) CheckOrder(ctx context.Context, orderID string, force bool) (*models.Order, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("status sync service not configured")
	}
	order, err := s.Repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	minInterval := s.Config.MinInterval
	if force {
		minInterval = 0
	}
	if !s.isDue(order, time.Now().UTC(), minInterval) {
		return order, nil
	}
	if _, _, err := s.syncOrder(ctx, order); err != nil {
		return nil, err
	}
	return s.Repo.GetOrderByID(ctx, orderID)
}

// isDue applies the eligibility filter: non-terminal status, an active
// upstream reference, no settlement in flight, and past the recheck floor.
func (s *StatusSyncService) isDue(o *models.Order, now time.Time, minInterval time.Duration) bool {
	if o == nil {
		return false
	}
	if status.Canonical(o.Status).IsTerminal() {
		return false
	}
	if o.RefundStatus != nil && *o.RefundStatus != models.RefundStatusFailed {
		return false
	}
	if _, _, ok := provider.ResolveActiveRef(o); !ok {
		return false
	}
	if minInterval > 0 && o.LastStatusCheck != nil && now.Sub(*o.LastStatusCheck) < minInterval {
		return false
	}
	return true
}

// syncOrder fetches, extracts, normalizes and commits for one order.
// last_status_check is touched whether or not anything else succeeds, so a
// panel outage cannot pin an order at the head of the queue.
func (s *StatusSyncService) syncOrder(ctx context.Context, order *models.Order) (updated bool, refunded bool, err error) {
	defer func() {
		if terr := s.Repo.TouchLastStatusCheck(ctx, order.ID, time.Now().UTC()); terr != nil {
			s.logWarn("touch last status check failed", terr, zap.String("order_id", order.ID))
		}
	}()

	key, ref, ok := provider.ResolveActiveRef(order)
	if !ok {
		return false, false, fmt.Errorf("no active provider reference")
	}
	client := s.Clients[key]
	if client == nil {
		return false, false, fmt.Errorf("no client configured for provider %s", key)
	}

	body, err := provider.FetchStatusWithRetry(ctx, client, ref, s.Config.MaxAttempts)
	if err != nil {
		return false, false, fmt.Errorf("fetch from %s: %w", key, err)
	}

	raw, ok := status.ExtractRawStatus(body)
	if !ok {
		s.logDebug("no status field in payload", zap.String("order_id", order.ID), zap.String("provider", string(key)))
		return false, false, nil
	}
	canon, ok := status.Normalize(string(key), raw)
	if !ok {
		s.logDebug("unrecognized provider status", zap.String("order_id", order.ID), zap.String("provider", string(key)), zap.Any("raw", raw))
		return false, false, nil
	}

	return s.commit(ctx, order, key, canon, body)
}

// commit applies one observed canonical status. Unchanged statuses and
// anything observed against an already refunded order are dropped.
func (s *StatusSyncService) commit(ctx context.Context, order *models.Order, key provider.Key, canon status.Canonical, rawPayload []byte) (updated bool, refunded bool, err error) {
	if order.Status == string(canon) {
		return false, false, nil
	}
	if order.Status == string(status.Refunded) {
		return false, false, nil
	}

	var completedAt *time.Time
	if canon == status.Completed {
		now := time.Now().UTC()
		completedAt = &now
	}
	if err := s.Repo.UpdateOrderStatusObserved(ctx, order.ID, string(canon), completedAt); err != nil {
		return false, false, err
	}
	if s.History != nil {
		s.History.Record(ctx, order.ID, string(canon), order.Status, string(key), rawPayload, "")
	}
	s.logDebug("order status updated",
		zap.String("order_id", order.ID),
		zap.String("provider", string(key)),
		zap.String("from", order.Status),
		zap.String("to", string(canon)))

	if canon.IsRefundTrigger() && s.Settlement != nil {
		if s.Flags == nil || s.Flags.IsEnabled(ctx, FeatureAutoRefund, true) {
			out, rerr := s.Settlement.RefundOrder(ctx, order.ID, fmt.Sprintf("order canceled by %s", key), "", false)
			if rerr != nil {
				return true, false, fmt.Errorf("refund after cancel: %w", rerr)
			}
			refunded = out == OutcomeRefunded
		}
	}
	return true, refunded, nil
}

func (s *StatusSyncService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}

func (s *StatusSyncService) logDebug(msg string, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Debug(msg, fields...)
}
