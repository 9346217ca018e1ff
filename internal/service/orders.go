package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boostpanel/internal/models"
	"boostpanel/internal/repository"
)

var (
	ErrQuantityOutOfRange   = errors.New("quantity outside service bounds")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrServiceNotFound      = errors.New("service not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrBalanceVerifyFailure = errors.New("balance verification failed")
)

// OrderService creates orders and debits the buyer. Pricing is rate per
// 1000 units, fixed at creation; the total doubles as the refund amount.
type OrderService struct {
	Repo    repository.Repository
	Logger  *zap.Logger
	History *HistoryWriter
}

type CreateOrderInput struct {
	UserID    string
	ServiceID string
	Link      string
	Quantity  int
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("order service not configured")
	}
	in.Link = strings.TrimSpace(in.Link)
	if in.Link == "" {
		return nil, fmt.Errorf("link is required")
	}

	svc, err := s.Repo.GetServiceByID(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, ErrServiceNotFound
	}
	if in.Quantity < svc.MinQuantity || in.Quantity > svc.MaxQuantity {
		return nil, ErrQuantityOutOfRange
	}

	totalCost := svc.Rate.
		Mul(decimal.NewFromInt(int64(in.Quantity))).
		Div(decimal.NewFromInt(1000))

	user, err := s.Repo.GetUserByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", in.UserID)
	}
	if user.Balance.LessThan(totalCost) {
		return nil, ErrInsufficientBalance
	}

	target := user.Balance.Sub(totalCost)
	if err := s.Repo.UpdateUserBalance(ctx, user.ID, target); err != nil {
		return nil, err
	}
	fresh, err := s.Repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil || !fresh.Balance.Equal(target) {
		return nil, ErrBalanceVerifyFailure
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		ServiceID: svc.ID,
		Link:      in.Link,
		Quantity:  in.Quantity,
		TotalCost: totalCost,
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.InsertOrder(ctx, order); err != nil {
		// Undo the debit so a failed insert does not eat the balance.
		if uerr := s.Repo.UpdateUserBalance(ctx, user.ID, user.Balance); uerr != nil {
			s.logWarn("debit rollback failed", uerr, zap.String("user_id", user.ID))
		}
		return nil, err
	}

	tx := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Amount:      totalCost,
		Type:        models.TransactionTypeOrder,
		Status:      models.TransactionStatusDone,
		OrderID:     order.ID,
		Description: fmt.Sprintf("order for %s x%d", svc.Name, in.Quantity),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.InsertTransaction(ctx, tx); err != nil {
		s.logWarn("order ledger insert failed", err, zap.String("order_id", order.ID))
	}

	if s.Logger != nil {
		s.Logger.Info("order created",
			zap.String("order_id", order.ID),
			zap.String("user_id", in.UserID),
			zap.String("service_id", svc.ID),
			zap.String("total_cost", totalCost.String()))
	}
	return order, nil
}

// OverrideStatus is the admin path: it writes any canonical status directly
// and records the actor in the audit trail. Orders already refunded are
// immutable here just as they are for the reconciler.
func (s *OrderService) OverrideStatus(ctx context.Context, orderID, newStatus, actorID string) (*models.Order, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("order service not configured")
	}
	order, err := s.Repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == newStatus {
		return order, nil
	}
	if order.Status == "refunded" {
		return nil, fmt.Errorf("refunded orders are immutable")
	}

	var completedAt *time.Time
	if newStatus == "completed" {
		now := time.Now().UTC()
		completedAt = &now
	}
	if err := s.Repo.UpdateOrderStatusObserved(ctx, orderID, newStatus, completedAt); err != nil {
		return nil, err
	}
	if s.History != nil {
		s.History.Record(ctx, orderID, newStatus, order.Status, models.HistorySourceManual, nil, actorID)
	}
	return s.Repo.GetOrderByID(ctx, orderID)
}

func (s *OrderService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
