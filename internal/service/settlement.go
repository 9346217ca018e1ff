package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"boostpanel/internal/models"
	"boostpanel/internal/repository"
	"boostpanel/internal/status"
)

// SettlementOutcome is what a refund attempt resolved to, from the caller's
// point of view. Losing the claim race is an outcome, not an error.
type SettlementOutcome string

const (
	OutcomeRefunded        SettlementOutcome = "refunded"
	OutcomeAlreadyRefunded SettlementOutcome = "already_refunded"
	OutcomeInProgress      SettlementOutcome = "in_progress"
	OutcomeFailed          SettlementOutcome = "failed"
)

// ledgerInsertFailedMsg is the refund_error recorded when the balance write
// landed but the ledger row did not. A later re-claim keys off it and skips
// the credit, finishing only the bookkeeping.
const ledgerInsertFailedMsg = "balance credited but ledger insert failed"

// SettlementService credits an order's full cost back to its owner exactly
// once. The claim is a conditional update on refund_status judged by rows
// affected; whoever wins it owns the whole settlement and everyone else
// backs off. refund_status is the source of truth; status=refunded is
// derived from it in the same commit that records success.
type SettlementService struct {
	Repo    repository.Repository
	Logger  *zap.Logger
	History *HistoryWriter
}

// RefundOrder runs one settlement attempt for the order. allowFailed permits
// re-claiming an order whose previous attempt ended in failed; the automatic
// path passes false so a failed refund stays parked until an operator looks
// at it.
func (s *SettlementService) RefundOrder(ctx context.Context, orderID, reason, actorID string, allowFailed bool) (SettlementOutcome, error) {
	if s == nil || s.Repo == nil {
		return OutcomeFailed, fmt.Errorf("settlement service not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OutcomeFailed, fmt.Errorf("order id is required")
	}

	order, err := s.Repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return OutcomeFailed, err
	}
	if order == nil {
		return OutcomeFailed, fmt.Errorf("order %s not found", orderID)
	}

	// Fast path: settled or owned by someone else. The claim below would
	// reject these too; checking first saves the write.
	if out, done := outcomeForRefundStatus(order.RefundStatus, allowFailed); done {
		return out, nil
	}

	claimed, err := s.Repo.ClaimRefund(ctx, orderID, allowFailed, time.Now().UTC())
	if err != nil {
		return OutcomeFailed, err
	}
	if !claimed {
		// Lost the race. Re-read to report what actually happened.
		fresh, err := s.Repo.GetOrderByID(ctx, orderID)
		if err != nil || fresh == nil {
			return OutcomeInProgress, nil
		}
		if out, done := outcomeForRefundStatus(fresh.RefundStatus, allowFailed); done {
			return out, nil
		}
		return OutcomeInProgress, nil
	}

	// order was read before the claim cleared refund_error, so credit can
	// still see what a previous attempt left behind.
	if err := s.credit(ctx, order, reason, actorID, order.RefundError); err != nil {
		s.logWarn("refund credit failed", err, zap.String("order_id", orderID))
		if ferr := s.Repo.FinishRefund(ctx, orderID, models.RefundStatusFailed, err.Error(), false); ferr != nil {
			s.logWarn("mark refund failed errored", ferr, zap.String("order_id", orderID))
		}
		return OutcomeFailed, err
	}

	if err := s.Repo.FinishRefund(ctx, orderID, models.RefundStatusSucceeded, "", true); err != nil {
		return OutcomeFailed, err
	}
	if s.History != nil {
		source := models.HistorySourceSystem
		if actorID != "" {
			source = models.HistorySourceManual
		}
		s.History.Record(ctx, orderID, string(status.Refunded), order.Status, source, nil, actorID)
	}
	if s.Logger != nil {
		s.Logger.Info("order refunded",
			zap.String("order_id", orderID),
			zap.String("user_id", order.UserID),
			zap.String("amount", order.TotalCost.String()))
	}
	return OutcomeRefunded, nil
}

// credit performs the economic half: balance read-write-verify plus the
// single refund ledger row. A prior attempt that already wrote the ledger
// row got through the whole sequence, so its presence means the money moved.
// A prior attempt that died between the balance write and the ledger insert
// left the ledgerInsertFailedMsg marker instead; either way this attempt
// must not move the money again.
func (s *SettlementService) credit(ctx context.Context, order *models.Order, reason, actorID, prevRefundError string) error {
	count, err := s.Repo.CountRefundTransactionsByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if !strings.HasPrefix(prevRefundError, ledgerInsertFailedMsg) {
		user, err := s.Repo.GetUserByID(ctx, order.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s not found", order.UserID)
		}

		target := user.Balance.Add(order.TotalCost)
		if err := s.Repo.UpdateUserBalance(ctx, user.ID, target); err != nil {
			return err
		}
		fresh, err := s.Repo.GetUserByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if fresh == nil || !fresh.Balance.Equal(target) {
			return fmt.Errorf("balance verification failed for user %s", user.ID)
		}
	}

	description := strings.TrimSpace(reason)
	if description == "" {
		description = fmt.Sprintf("refund for order %s", order.ID)
	}
	tx := &models.Transaction{
		ID:             uuid.NewString(),
		UserID:         order.UserID,
		Amount:         order.TotalCost,
		Type:           models.TransactionTypeRefund,
		Status:         models.TransactionStatusDone,
		OrderID:        order.ID,
		Description:    description,
		AutoClassified: actorID == "",
	}
	if err := s.Repo.InsertTransaction(ctx, tx); err != nil {
		// The credit already landed. The marker lands in refund_error via
		// FinishRefund so a retry knows not to apply it twice.
		return fmt.Errorf("%s: %w", ledgerInsertFailedMsg, err)
	}
	return nil
}

func outcomeForRefundStatus(refundStatus *string, allowFailed bool) (SettlementOutcome, bool) {
	if refundStatus == nil {
		return "", false
	}
	switch *refundStatus {
	case models.RefundStatusSucceeded:
		return OutcomeAlreadyRefunded, true
	case models.RefundStatusPending:
		return OutcomeInProgress, true
	case models.RefundStatusFailed:
		if allowFailed {
			return "", false
		}
		return OutcomeFailed, true
	default:
		return "", false
	}
}

func (s *SettlementService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
