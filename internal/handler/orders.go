package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"boostpanel/internal/auth"
	"boostpanel/internal/models"
	"boostpanel/internal/repository"
	"boostpanel/internal/service"
)

type OrderHandler struct {
	Repo     repository.Repository
	Orders   *service.OrderService
	Sync     *service.StatusSyncService
	Deposits *service.DepositService
	JWT      auth.JWT
}

func (h *OrderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1", auth.Middleware(h.JWT))
	g.GET("/orders", h.list)
	g.POST("/orders", h.create)
	g.GET("/orders/:id", h.get)
	g.POST("/orders/:id/check", h.check)
	g.GET("/orders/:id/history", h.history)
	g.GET("/transactions", h.transactions)
	g.POST("/deposits", h.requestDeposit)
}

// loadOwnOrder fetches the order and enforces ownership; admins can read
// anyone's.
func (h *OrderHandler) loadOwnOrder(c *gin.Context) (*models.Order, bool) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return nil, false
	}
	order, err := h.Repo.GetOrderByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return nil, false
	}
	if order == nil || (order.UserID != claims.UserID && claims.Role != models.RoleAdmin) {
		Error(c, http.StatusNotFound, "order not found", nil)
		return nil, false
	}
	return order, true
}

// @Summary List own orders
// @Tags orders
// @Param status query string false "status filter"
// @Success 200 {object} map[string]any
// @Router /api/v1/orders [get]
func (h *OrderHandler) list(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || h.Repo == nil {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:   limit,
		Offset:  offset,
		UserID:  &claims.UserID,
		Status:  strQueryPtr(c, "status"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

type createOrderRequest struct {
	ServiceID string `json:"service_id" binding:"required"`
	Link      string `json:"link" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// @Summary Create an order
// @Tags orders
// @Accept json
// @Param request body createOrderRequest true "order"
// @Success 200 {object} map[string]any
// @Router /api/v1/orders [post]
func (h *OrderHandler) create(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || h.Orders == nil {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	order, err := h.Orders.Create(c.Request.Context(), service.CreateOrderInput{
		UserID:    claims.UserID,
		ServiceID: req.ServiceID,
		Link:      req.Link,
		Quantity:  req.Quantity,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrServiceNotFound):
			Error(c, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, service.ErrQuantityOutOfRange):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrInsufficientBalance):
			Error(c, http.StatusPaymentRequired, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, order, nil)
}

// @Summary Get one order
// @Tags orders
// @Success 200 {object} map[string]any
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	order, ok := h.loadOwnOrder(c)
	if !ok {
		return
	}
	Ok(c, order, nil)
}

// @Summary Recheck an order's upstream status now
// @Tags orders
// @Param force query bool false "bypass recheck floor (admin only)"
// @Success 200 {object} map[string]any
// @Router /api/v1/orders/{id}/check [post]
func (h *OrderHandler) check(c *gin.Context) {
	if h.Sync == nil {
		Error(c, http.StatusServiceUnavailable, "status sync unavailable", nil)
		return
	}
	order, ok := h.loadOwnOrder(c)
	if !ok {
		return
	}
	force := false
	if v, err := strconv.ParseBool(c.Query("force")); err == nil && v {
		claims, _ := auth.ClaimsFrom(c)
		force = claims.Role == models.RoleAdmin
	}
	out, err := h.Sync.CheckOrder(c.Request.Context(), order.ID, force)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}

// @Summary Order status history
// @Tags orders
// @Success 200 {object} map[string]any
// @Router /api/v1/orders/{id}/history [get]
func (h *OrderHandler) history(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	order, ok := h.loadOwnOrder(c)
	if !ok {
		return
	}
	items, err := h.Repo.ListOrderStatusHistory(c.Request.Context(), order.ID, intQuery(c, "limit", 100))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary List own ledger entries
// @Tags transactions
// @Param type query string false "transaction type"
// @Success 200 {object} map[string]any
// @Router /api/v1/transactions [get]
func (h *OrderHandler) transactions(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || h.Repo == nil {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListTransactionsParams{
		Limit:   limit,
		Offset:  offset,
		UserID:  &claims.UserID,
		Type:    strQueryPtr(c, "type"),
		Status:  strQueryPtr(c, "status"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListTransactions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTransactions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

type depositRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// @Summary Request a deposit
// @Tags transactions
// @Accept json
// @Param request body depositRequest true "deposit"
// @Success 200 {object} map[string]any
// @Router /api/v1/deposits [post]
func (h *OrderHandler) requestDeposit(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || h.Deposits == nil {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid amount", nil)
		return
	}
	tx, err := h.Deposits.Request(c.Request.Context(), claims.UserID, amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDepositsDisabled):
			Error(c, http.StatusForbidden, err.Error(), nil)
		case errors.Is(err, service.ErrInvalidAmount):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, tx, nil)
}
