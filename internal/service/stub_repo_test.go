package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"boostpanel/internal/models"
	"boostpanel/internal/repository"
)

// stubRepo is an in-memory repository.Repository. ClaimRefund is a real
// mutex-guarded compare-and-set so the settlement tests exercise the same
// winner-takes-all semantics the SQL conditional update provides.
type stubRepo struct {
	mu sync.Mutex

	users        map[string]*models.User
	services     map[string]*models.Service
	orders       map[string]*models.Order
	transactions map[string]*models.Transaction
	settings     map[string]*models.SystemSetting
	history      []models.OrderStatusHistory

	failBalanceWrite      bool
	failTransactionInsert bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:        map[string]*models.User{},
		services:     map[string]*models.Service{},
		orders:       map[string]*models.Order{},
		transactions: map[string]*models.Transaction{},
		settings:     map[string]*models.SystemSetting{},
	}
}

var _ repository.Repository = (*stubRepo)(nil)

func (r *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (r *stubRepo) InsertUser(ctx context.Context, item *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.users[item.ID] = &cp
	return nil
}

func (r *stubRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *stubRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *stubRepo) CountUsers(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *stubRepo) UpdateUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBalanceWrite {
		return errors.New("stub: balance write refused")
	}
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Balance = balance
	return nil
}

func (r *stubRepo) InsertService(ctx context.Context, item *models.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.services[item.ID] = &cp
	return nil
}

func (r *stubRepo) GetServiceByID(ctx context.Context, id string) (*models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *stubRepo) ListServices(ctx context.Context, params repository.ListServicesParams) ([]models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, *s)
	}
	return out, nil
}

func (r *stubRepo) InsertOrder(ctx context.Context, item *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.orders[item.ID] = &cp
	return nil
}

func (r *stubRepo) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if params.UserID != nil && o.UserID != *params.UserID {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (r *stubRepo) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	items, _ := r.ListOrders(ctx, params)
	return int64(len(items)), nil
}

func (r *stubRepo) ListOrdersForStatusCheck(ctx context.Context, limit int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if o.Status == "completed" || o.Status == "refunded" {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastStatusCheck, out[j].LastStatusCheck
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubRepo) UpdateOrderStatusObserved(ctx context.Context, id string, newStatus string, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = newStatus
	if completedAt != nil && o.CompletedAt == nil {
		cp := *completedAt
		o.CompletedAt = &cp
	}
	return nil
}

func (r *stubRepo) TouchLastStatusCheck(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := at
	o.LastStatusCheck = &cp
	return nil
}

func (r *stubRepo) ClaimRefund(ctx context.Context, orderID string, allowFailed bool, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return false, nil
	}
	claimable := o.RefundStatus == nil ||
		(allowFailed && *o.RefundStatus == models.RefundStatusFailed)
	if !claimable {
		return false, nil
	}
	pending := models.RefundStatusPending
	o.RefundStatus = &pending
	cp := at
	o.RefundAttemptedAt = &cp
	o.RefundError = ""
	return true, nil
}

func (r *stubRepo) FinishRefund(ctx context.Context, orderID string, refundStatus string, errMsg string, markRefunded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.RefundStatus == nil || *o.RefundStatus != models.RefundStatusPending {
		return gorm.ErrRecordNotFound
	}
	st := refundStatus
	o.RefundStatus = &st
	o.RefundError = errMsg
	if markRefunded {
		o.Status = "refunded"
	}
	return nil
}

func (r *stubRepo) InsertOrderStatusHistory(ctx context.Context, item *models.OrderStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item.ID = uint64(len(r.history) + 1)
	r.history = append(r.history, *item)
	return nil
}

func (r *stubRepo) ListOrderStatusHistory(ctx context.Context, orderID string, limit int) ([]models.OrderStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.OrderStatusHistory{}
	for _, h := range r.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubRepo) InsertTransaction(ctx context.Context, item *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTransactionInsert {
		return errors.New("stub: transaction insert refused")
	}
	cp := *item
	r.transactions[item.ID] = &cp
	return nil
}

func (r *stubRepo) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *stubRepo) ListTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Transaction{}
	for _, tx := range r.transactions {
		if params.UserID != nil && tx.UserID != *params.UserID {
			continue
		}
		if params.Type != nil && tx.Type != *params.Type {
			continue
		}
		if params.Status != nil && tx.Status != *params.Status {
			continue
		}
		if params.OrderID != nil && tx.OrderID != *params.OrderID {
			continue
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (r *stubRepo) CountTransactions(ctx context.Context, params repository.ListTransactionsParams) (int64, error) {
	items, _ := r.ListTransactions(ctx, params)
	return int64(len(items)), nil
}

func (r *stubRepo) UpdateTransactionStatus(ctx context.Context, id string, transactionStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tx.Status = transactionStatus
	return nil
}

func (r *stubRepo) CountRefundTransactionsByOrderID(ctx context.Context, orderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, tx := range r.transactions {
		if tx.OrderID == orderID && tx.Type == models.TransactionTypeRefund {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.settings[item.Key] = &cp
	return nil
}

func (r *stubRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.SystemSetting{}
	for _, s := range r.settings {
		if params.Prefix != nil && !strings.HasPrefix(s.Key, *params.Prefix) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *stubRepo) CountOrdersByStatus(ctx context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, o := range r.orders {
		out[o.Status]++
	}
	return out, nil
}

func (r *stubRepo) CountPendingDeposits(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, tx := range r.transactions {
		if tx.Type == models.TransactionTypeDeposit && tx.Status == models.TransactionStatusPending {
			n++
		}
	}
	return n, nil
}
