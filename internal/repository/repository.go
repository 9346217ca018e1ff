package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"boostpanel/internal/models"
)

// Repository is the record store consumed by the services. The only true
// cross-process synchronization point in the system is ClaimRefund's
// conditional write; everything else is plain single-row reads and writes.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users / balances
	InsertUser(ctx context.Context, item *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, params ListUsersParams) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	// UpdateUserBalance overwrites the stored balance. Callers follow the
	// read-write-verify discipline: re-read after writing and compare.
	UpdateUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// Service catalog
	InsertService(ctx context.Context, item *models.Service) error
	GetServiceByID(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, params ListServicesParams) ([]models.Service, error)

	// Orders
	InsertOrder(ctx context.Context, item *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)
	// ListOrdersForStatusCheck returns non-terminal orders, least recently
	// checked first. Eligibility filtering proper happens in the reconciler.
	ListOrdersForStatusCheck(ctx context.Context, limit int) ([]models.Order, error)
	UpdateOrderStatusObserved(ctx context.Context, id string, newStatus string, completedAt *time.Time) error
	TouchLastStatusCheck(ctx context.Context, id string, at time.Time) error

	// Refund state machine. ClaimRefund must be a single conditional update
	// judged by rows affected, never a read-then-write pair.
	ClaimRefund(ctx context.Context, orderID string, allowFailed bool, at time.Time) (bool, error)
	FinishRefund(ctx context.Context, orderID string, refundStatus string, errMsg string, markRefunded bool) error

	// Status history (append-only)
	InsertOrderStatusHistory(ctx context.Context, item *models.OrderStatusHistory) error
	ListOrderStatusHistory(ctx context.Context, orderID string, limit int) ([]models.OrderStatusHistory, error)

	// Ledger
	InsertTransaction(ctx context.Context, item *models.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, params ListTransactionsParams) ([]models.Transaction, error)
	CountTransactions(ctx context.Context, params ListTransactionsParams) (int64, error)
	UpdateTransactionStatus(ctx context.Context, id string, transactionStatus string) error
	CountRefundTransactionsByOrderID(ctx context.Context, orderID string) (int64, error)

	// System settings
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)

	// Stats
	CountOrdersByStatus(ctx context.Context) (map[string]int64, error)
	CountPendingDeposits(ctx context.Context) (int64, error)
}

type ListUsersParams struct {
	Limit   int
	Offset  int
	Role    *string
	Email   *string
	OrderBy string
	Asc     *bool
}

type ListServicesParams struct {
	Limit    int
	Offset   int
	Platform *string
	OrderBy  string
	Asc      *bool
}

type ListOrdersParams struct {
	Limit        int
	Offset       int
	UserID       *string
	Status       *string
	RefundStatus *string
	OrderBy      string
	Asc          *bool
}

type ListTransactionsParams struct {
	Limit   int
	Offset  int
	UserID  *string
	Type    *string
	Status  *string
	OrderID *string
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
