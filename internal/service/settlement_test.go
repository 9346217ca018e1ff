package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boostpanel/internal/models"
)

func seedRefundFixture(repo *stubRepo) (*models.User, *models.Order) {
	user := &models.User{
		ID:      "user-1",
		Email:   "buyer@example.com",
		Name:    "Buyer",
		Balance: decimal.RequireFromString("100.00"),
		Role:    models.RoleUser,
	}
	order := &models.Order{
		ID:               "order-1",
		UserID:           user.ID,
		ServiceID:        "svc-1",
		Link:             "https://example.com/p/1",
		Quantity:         1000,
		TotalCost:        decimal.RequireFromString("25.00"),
		Status:           "canceled",
		SmmstoneOrderID:  "sm-1",
		PanelzoneOrderID: "0",
	}
	_ = repo.InsertUser(context.Background(), user)
	_ = repo.InsertOrder(context.Background(), order)
	return user, order
}

func newSettlement(repo *stubRepo) *SettlementService {
	logger := zap.NewNop()
	return &SettlementService{
		Repo:    repo,
		Logger:  logger,
		History: &HistoryWriter{Repo: repo, Logger: logger},
	}
}

func TestRefundOrder_CreditsOnce(t *testing.T) {
	repo := newStubRepo()
	user, order := seedRefundFixture(repo)
	svc := newSettlement(repo)

	out, err := svc.RefundOrder(context.Background(), order.ID, "canceled upstream", "", false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out != OutcomeRefunded {
		t.Fatalf("outcome=%s want refunded", out)
	}

	fresh, _ := repo.GetUserByID(context.Background(), user.ID)
	if want := decimal.RequireFromString("125.00"); !fresh.Balance.Equal(want) {
		t.Fatalf("balance=%s want %s", fresh.Balance, want)
	}
	o, _ := repo.GetOrderByID(context.Background(), order.ID)
	if o.RefundStatus == nil || *o.RefundStatus != models.RefundStatusSucceeded {
		t.Fatalf("refund_status=%v want succeeded", o.RefundStatus)
	}
	if o.Status != "refunded" {
		t.Fatalf("status=%s want refunded", o.Status)
	}
	if o.RefundAttemptedAt == nil {
		t.Fatalf("refund_attempted_at not set")
	}
	n, _ := repo.CountRefundTransactionsByOrderID(context.Background(), order.ID)
	if n != 1 {
		t.Fatalf("refund rows=%d want 1", n)
	}
	hist, _ := repo.ListOrderStatusHistory(context.Background(), order.ID, 10)
	if len(hist) != 1 || hist[0].NewStatus != "refunded" || hist[0].Source != models.HistorySourceSystem {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestRefundOrder_Idempotent(t *testing.T) {
	repo := newStubRepo()
	user, order := seedRefundFixture(repo)
	svc := newSettlement(repo)

	if _, err := svc.RefundOrder(context.Background(), order.ID, "", "", false); err != nil {
		t.Fatalf("first refund err=%v", err)
	}
	out, err := svc.RefundOrder(context.Background(), order.ID, "", "", false)
	if err != nil {
		t.Fatalf("second refund err=%v", err)
	}
	if out != OutcomeAlreadyRefunded {
		t.Fatalf("outcome=%s want already_refunded", out)
	}

	fresh, _ := repo.GetUserByID(context.Background(), user.ID)
	if want := decimal.RequireFromString("125.00"); !fresh.Balance.Equal(want) {
		t.Fatalf("balance=%s want %s (double credit)", fresh.Balance, want)
	}
	n, _ := repo.CountRefundTransactionsByOrderID(context.Background(), order.ID)
	if n != 1 {
		t.Fatalf("refund rows=%d want 1", n)
	}
}

func TestRefundOrder_ConcurrentSingleWinner(t *testing.T) {
	repo := newStubRepo()
	user, order := seedRefundFixture(repo)
	svc := newSettlement(repo)

	const n = 10
	outcomes := make([]SettlementOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, _ := svc.RefundOrder(context.Background(), order.ID, "", "", false)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, out := range outcomes {
		switch out {
		case OutcomeRefunded:
			winners++
		case OutcomeAlreadyRefunded, OutcomeInProgress:
		default:
			t.Fatalf("unexpected outcome %s", out)
		}
	}
	if winners != 1 {
		t.Fatalf("winners=%d want exactly 1", winners)
	}

	fresh, _ := repo.GetUserByID(context.Background(), user.ID)
	if want := decimal.RequireFromString("125.00"); !fresh.Balance.Equal(want) {
		t.Fatalf("balance=%s want %s", fresh.Balance, want)
	}
	rows, _ := repo.CountRefundTransactionsByOrderID(context.Background(), order.ID)
	if rows != 1 {
		t.Fatalf("refund rows=%d want 1", rows)
	}
}

func TestRefundOrder_ClaimedByOther(t *testing.T) {
	repo := newStubRepo()
	_, order := seedRefundFixture(repo)
	pending := models.RefundStatusPending
	repo.orders[order.ID].RefundStatus = &pending
	svc := newSettlement(repo)

	out, err := svc.RefundOrder(context.Background(), order.ID, "", "", false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out != OutcomeInProgress {
		t.Fatalf("outcome=%s want in_progress", out)
	}
}

func TestRefundOrder_FailureThenAdminRetry(t *testing.T) {
	repo := newStubRepo()
	user, order := seedRefundFixture(repo)
	svc := newSettlement(repo)

	repo.failBalanceWrite = true
	out, err := svc.RefundOrder(context.Background(), order.ID, "", "", false)
	if err == nil || out != OutcomeFailed {
		t.Fatalf("out=%s err=%v want failure", out, err)
	}
	o, _ := repo.GetOrderByID(context.Background(), order.ID)
	if o.RefundStatus == nil || *o.RefundStatus != models.RefundStatusFailed {
		t.Fatalf("refund_status=%v want failed", o.RefundStatus)
	}
	if o.RefundError == "" {
		t.Fatalf("refund_error not recorded")
	}

	// The automatic path must not re-claim a failed refund.
	out, err = svc.RefundOrder(context.Background(), order.ID, "", "", false)
	if err != nil || out != OutcomeFailed {
		t.Fatalf("auto retry out=%s err=%v want parked failure", out, err)
	}
	fresh, _ := repo.GetUserByID(context.Background(), user.ID)
	if !fresh.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("balance moved on failed refund: %s", fresh.Balance)
	}

	// Operator retry with allowFailed re-claims and completes.
	repo.failBalanceWrite = false
	out, err = svc.RefundOrder(context.Background(), order.ID, "retry", "admin-1", true)
	if err != nil || out != OutcomeRefunded {
		t.Fatalf("admin retry out=%s err=%v", out, err)
	}
	fresh, _ = repo.GetUserByID(context.Background(), user.ID)
	if want := decimal.RequireFromString("125.00"); !fresh.Balance.Equal(want) {
		t.Fatalf("balance=%s want %s", fresh.Balance, want)
	}
	rows, _ := repo.CountRefundTransactionsByOrderID(context.Background(), order.ID)
	if rows != 1 {
		t.Fatalf("refund rows=%d want 1", rows)
	}
	o, _ = repo.GetOrderByID(context.Background(), order.ID)
	if o.RefundError != "" {
		t.Fatalf("refund_error not cleared: %q", o.RefundError)
	}
}

func TestRefundOrder_LedgerFailureThenRetryCreditsOnce(t *testing.T) {
	repo := newStubRepo()
	user, order := seedRefundFixture(repo)
	svc := newSettlement(repo)

	repo.failTransactionInsert = true
	out, err := svc.RefundOrder(context.Background(), order.ID, "", "", false)
	if err == nil || out != OutcomeFailed {
		t.Fatalf("out=%s err=%v want failure", out, err)
	}
	// The balance write landed before the ledger insert refused.
	fresh, _ := repo.GetUserByID(context.Background(), user.ID)
	if want := decimal.RequireFromString("125.00"); !fresh.Balance.Equal(want) {
		t.Fatalf("balance=%s want %s", fresh.Balance, want)
	}

	// The operator retry must finish the bookkeeping without moving the
	// money a second time.
	repo.failTransactionInsert = false
	out, err = svc.RefundOrder(context.Background(), order.ID, "retry", "admin-1", true)
	if err != nil || out != OutcomeRefunded {
		t.Fatalf("retry out=%s err=%v", out, err)
	}
	fresh, _ = repo.GetUserByID(context.Background(), user.ID)
	if want := decimal.RequireFromString("125.00"); !fresh.Balance.Equal(want) {
		t.Fatalf("balance=%s want %s (credited more than once across attempts)", fresh.Balance, want)
	}
	rows, _ := repo.CountRefundTransactionsByOrderID(context.Background(), order.ID)
	if rows != 1 {
		t.Fatalf("refund rows=%d want 1", rows)
	}
	o, _ := repo.GetOrderByID(context.Background(), order.ID)
	if o.RefundStatus == nil || *o.RefundStatus != models.RefundStatusSucceeded {
		t.Fatalf("refund_status=%v want succeeded", o.RefundStatus)
	}
	if o.Status != "refunded" {
		t.Fatalf("status=%s want refunded", o.Status)
	}
}

func TestRefundOrder_LedgerFailureRecordsExplicitError(t *testing.T) {
	repo := newStubRepo()
	_, order := seedRefundFixture(repo)
	svc := newSettlement(repo)

	repo.failTransactionInsert = true
	out, err := svc.RefundOrder(context.Background(), order.ID, "", "", false)
	if err == nil || out != OutcomeFailed {
		t.Fatalf("out=%s err=%v want failure", out, err)
	}
	o, _ := repo.GetOrderByID(context.Background(), order.ID)
	if o.RefundStatus == nil || *o.RefundStatus != models.RefundStatusFailed {
		t.Fatalf("refund_status=%v want failed", o.RefundStatus)
	}
	// The stored error must make clear the credit itself landed.
	if o.RefundError == "" {
		t.Fatalf("refund_error not recorded")
	}
}
