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
	ErrDepositsDisabled  = errors.New("deposits are disabled")
	ErrDepositNotFound   = errors.New("deposit not found")
	ErrDepositNotPending = errors.New("deposit is not pending")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// DepositService manages user top-ups: a request creates a pending ledger
// row, and an admin approval credits the balance with the same
// read-write-verify discipline the settlement engine uses.
type DepositService struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Flags  *SystemSettingsService
}

func (s *DepositService) Request(ctx context.Context, userID string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("deposit service not configured")
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureDeposits, true) {
		return nil, ErrDepositsDisabled
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.TransactionTypeDeposit,
		Status:      models.TransactionStatusPending,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *DepositService) Approve(ctx context.Context, transactionID, actorID string) (*models.Transaction, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("deposit service not configured")
	}
	tx, err := s.pendingDeposit(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	user, err := s.Repo.GetUserByID(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", tx.UserID)
	}
	target := user.Balance.Add(tx.Amount)
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

	if err := s.Repo.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusApproved); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("deposit approved",
			zap.String("transaction_id", tx.ID),
			zap.String("user_id", tx.UserID),
			zap.String("amount", tx.Amount.String()),
			zap.String("actor_id", actorID))
	}
	return s.Repo.GetTransactionByID(ctx, tx.ID)
}

func (s *DepositService) Reject(ctx context.Context, transactionID, actorID string) (*models.Transaction, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("deposit service not configured")
	}
	tx, err := s.pendingDeposit(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusRejected); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("deposit rejected",
			zap.String("transaction_id", tx.ID),
			zap.String("actor_id", actorID))
	}
	return s.Repo.GetTransactionByID(ctx, tx.ID)
}

func (s *DepositService) pendingDeposit(ctx context.Context, transactionID string) (*models.Transaction, error) {
	tx, err := s.Repo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.Type != models.TransactionTypeDeposit {
		return nil, ErrDepositNotFound
	}
	if tx.Status != models.TransactionStatusPending {
		return nil, ErrDepositNotPending
	}
	return tx, nil
}
