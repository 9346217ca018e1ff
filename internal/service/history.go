package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"boostpanel/internal/models"
	"boostpanel/internal/repository"
)

// HistoryWriter appends order status history rows. Writes are best-effort:
// a failed audit insert is logged and swallowed so it never blocks the
// transition that triggered it.
type HistoryWriter struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *HistoryWriter) Record(ctx context.Context, orderID, newStatus, previousStatus, source string, rawPayload []byte, actorID string) {
	if h == nil || h.Repo == nil {
		return
	}
	item := &models.OrderStatusHistory{
		OrderID:        orderID,
		NewStatus:      newStatus,
		PreviousStatus: previousStatus,
		Source:         source,
		ActorID:        actorID,
		CreatedAt:      time.Now().UTC(),
	}
	if len(rawPayload) > 0 {
		item.RawPayload = datatypes.JSON(rawPayload)
	}
	if err := h.Repo.InsertOrderStatusHistory(ctx, item); err != nil && h.Logger != nil {
		h.Logger.Warn("order status history insert failed",
			zap.String("order_id", orderID),
			zap.String("new_status", newStatus),
			zap.Error(err))
	}
}
