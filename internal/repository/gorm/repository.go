package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"boostpanel/internal/models"
	"boostpanel/internal/repository"
	"boostpanel/internal/status"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Users ------------------------------------------------------------------

func (s *Store) InsertUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if s == nil || s.db == nil || strings.TrimSpace(email) == "" {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("lower(email) = lower(?)", strings.TrimSpace(email)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.User{})
	if params.Role != nil && strings.TrimSpace(*params.Role) != "" {
		query = query.Where("role = ?", strings.TrimSpace(*params.Role))
	}
	if params.Email != nil && strings.TrimSpace(*params.Email) != "" {
		query = query.Where("lower(email) = lower(?)", strings.TrimSpace(*params.Email))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.User
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error
	return total, err
}

func (s *Store) UpdateUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if s == nil || s.db == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", strings.TrimSpace(userID)).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- Services ---------------------------------------------------------------

func (s *Store) InsertService(ctx context.Context, item *models.Service) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetServiceByID(ctx context.Context, id string) (*models.Service, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Service
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListServices(ctx context.Context, params repository.ListServicesParams) ([]models.Service, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Service{})
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Service
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Orders -----------------------------------------------------------------

func (s *Store) InsertOrder(ctx context.Context, item *models.Order) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrderFilters(s.db.WithContext(ctx).Model(&models.Order{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Order
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyOrderFilters(s.db.WithContext(ctx).Model(&models.Order{}), params).Count(&total).Error
	return total, err
}

func applyOrderFilters(query *gorm.DB, params repository.ListOrdersParams) *gorm.DB {
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.RefundStatus != nil && strings.TrimSpace(*params.RefundStatus) != "" {
		query = query.Where("refund_status = ?", strings.TrimSpace(*params.RefundStatus))
	}
	return query
}

func (s *Store) ListOrdersForStatusCheck(ctx context.Context, limit int) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Order
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status NOT IN ?", []string{string(status.Completed), string(status.Refunded)}).
		Order("last_status_check asc NULLS FIRST").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateOrderStatusObserved(ctx context.Context, id string, newStatus string, completedAt *time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" || strings.TrimSpace(newStatus) == "" {
		return nil
	}
	updates := map[string]any{
		"status":     strings.TrimSpace(newStatus),
		"updated_at": time.Now().UTC(),
	}
	if completedAt != nil {
		// completed_at is written once, the first time the order completes.
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", *completedAt)
	}
	return s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", strings.TrimSpace(id)).Updates(updates).Error
}

func (s *Store) TouchLastStatusCheck(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(map[string]any{
			"last_status_check": at,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// --- Refund state machine ---------------------------------------------------

// ClaimRefund is the single conditional write the settlement engine's
// exactly-once guarantee rests on. Two concurrent callers both see rows
// affected at most once; the loser must re-read and report the race.
func (s *Store) ClaimRefund(ctx context.Context, orderID string, allowFailed bool, at time.Time) (bool, error) {
	if s == nil || s.db == nil || strings.TrimSpace(orderID) == "" {
		return false, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", strings.TrimSpace(orderID))
	if allowFailed {
		query = query.Where("refund_status IS NULL OR refund_status = ?", models.RefundStatusFailed)
	} else {
		query = query.Where("refund_status IS NULL")
	}
	res := query.Updates(map[string]any{
		"refund_status":       models.RefundStatusPending,
		"refund_attempted_at": at,
		"refund_error":        "",
		"updated_at":          time.Now().UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) FinishRefund(ctx context.Context, orderID string, refundStatus string, errMsg string, markRefunded bool) error {
	if s == nil || s.db == nil || strings.TrimSpace(orderID) == "" {
		return nil
	}
	updates := map[string]any{
		"refund_status": refundStatus,
		"refund_error":  errMsg,
		"updated_at":    time.Now().UTC(),
	}
	if markRefunded {
		updates["status"] = string(status.Refunded)
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", strings.TrimSpace(orderID)).
		Where("refund_status = ?", models.RefundStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- Status history ---------------------------------------------------------

func (s *Store) InsertOrderStatusHistory(ctx context.Context, item *models.OrderStatusHistory) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListOrderStatusHistory(ctx context.Context, orderID string, limit int) ([]models.OrderStatusHistory, error) {
	if s == nil || s.db == nil || strings.TrimSpace(orderID) == "" {
		return nil, nil
	}
	var items []models.OrderStatusHistory
	err := s.db.WithContext(ctx).
		Model(&models.OrderStatusHistory{}).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Order("created_at desc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Ledger -----------------------------------------------------------------

func (s *Store) InsertTransaction(ctx context.Context, item *models.Transaction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyTransactionFilters(s.db.WithContext(ctx).Model(&models.Transaction{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Transaction
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTransactions(ctx context.Context, params repository.ListTransactionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyTransactionFilters(s.db.WithContext(ctx).Model(&models.Transaction{}), params).Count(&total).Error
	return total, err
}

func applyTransactionFilters(query *gorm.DB, params repository.ListTransactionsParams) *gorm.DB {
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.OrderID != nil && strings.TrimSpace(*params.OrderID) != "" {
		query = query.Where("order_id = ?", strings.TrimSpace(*params.OrderID))
	}
	return query
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, transactionStatus string) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" || strings.TrimSpace(transactionStatus) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(map[string]any{
			"status":     strings.TrimSpace(transactionStatus),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) CountRefundTransactionsByOrderID(ctx context.Context, orderID string) (int64, error) {
	if s == nil || s.db == nil || strings.TrimSpace(orderID) == "" {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Where("type = ?", models.TransactionTypeRefund).
		Count(&total).Error
	return total, err
}

// --- System settings --------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil || strings.TrimSpace(key) == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Stats ------------------------------------------------------------------

func (s *Store) CountOrdersByStatus(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

func (s *Store) CountPendingDeposits(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("type = ?", models.TransactionTypeDeposit).
		Where("status = ?", models.TransactionStatusPending).
		Count(&total).Error
	return total, err
}

// --- Helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
