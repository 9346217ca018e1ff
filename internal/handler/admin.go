package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"boostpanel/internal/auth"
	"boostpanel/internal/cache"
	"boostpanel/internal/models"
	"boostpanel/internal/repository"
	"boostpanel/internal/service"
	"boostpanel/internal/status"
)

type AdminHandler struct {
	Repo       repository.Repository
	Orders     *service.OrderService
	Sync       *service.BulkCheckService
	Settlement *service.SettlementService
	Deposits   *service.DepositService
	Flags      *service.SystemSettingsService
	Cache      cache.Store
	JWT        auth.JWT
}

func (h *AdminHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/admin", auth.Middleware(h.JWT), auth.RequireAdmin())
	g.GET("/users", h.listUsers)
	g.GET("/orders", h.listOrders)
	g.POST("/orders/:id/status", h.overrideStatus)
	g.POST("/orders/:id/refund", h.retryRefund)
	g.POST("/status-sync/run", h.runStatusSync)
	g.POST("/deposits/:id/approve", h.approveDeposit)
	g.POST("/deposits/:id/reject", h.rejectDeposit)
	g.POST("/services", h.createService)
	g.GET("/stats", h.stats)
	g.GET("/settings", h.listSettings)
	g.PUT("/settings/:key", h.setSetting)
}

// @Summary List users
// @Tags admin
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/users [get]
func (h *AdminHandler) listUsers(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListUsers(c.Request.Context(), repository.ListUsersParams{
		Limit:   limit,
		Offset:  offset,
		Role:    strQueryPtr(c, "role"),
		Email:   strQueryPtr(c, "email"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountUsers(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary List all orders
// @Tags admin
// @Param status query string false "status filter"
// @Param refund_status query string false "refund status filter"
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/orders [get]
func (h *AdminHandler) listOrders(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:        limit,
		Offset:       offset,
		UserID:       strQueryPtr(c, "user_id"),
		Status:       strQueryPtr(c, "status"),
		RefundStatus: strQueryPtr(c, "refund_status"),
		OrderBy:      "created_at",
		Asc:          boolPtr(false),
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

type overrideStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary Manually override an order's status
// @Tags admin
// @Accept json
// @Param request body overrideStatusRequest true "new status"
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/orders/{id}/status [post]
func (h *AdminHandler) overrideStatus(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "orders unavailable", nil)
		return
	}
	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	canon, ok := status.Normalize("", req.Status)
	if !ok {
		Error(c, http.StatusBadRequest, "unrecognized status", nil)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	order, err := h.Orders.OverrideStatus(c.Request.Context(), c.Param("id"), string(canon), claims.UserID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	// Manual cancellation settles the same way an observed one does.
	if canon.IsRefundTrigger() && h.Settlement != nil {
		out, rerr := h.Settlement.RefundOrder(c.Request.Context(), order.ID, "order canceled by admin", claims.UserID, false)
		if rerr != nil {
			Error(c, http.StatusBadGateway, rerr.Error(), map[string]any{"refund_outcome": string(out)})
			return
		}
		order, _ = h.Repo.GetOrderByID(c.Request.Context(), order.ID)
		Ok(c, order, map[string]any{"refund_outcome": string(out)})
		return
	}
	Ok(c, order, nil)
}

type retryRefundRequest struct {
	Reason string `json:"reason"`
}

// @Summary Retry a failed refund
// @Tags admin
// @Accept json
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/orders/{id}/refund [post]
func (h *AdminHandler) retryRefund(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusServiceUnavailable, "settlement unavailable", nil)
		return
	}
	var req retryRefundRequest
	_ = c.ShouldBindJSON(&req)
	claims, _ := auth.ClaimsFrom(c)
	out, err := h.Settlement.RefundOrder(c.Request.Context(), c.Param("id"), req.Reason, claims.UserID, true)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), map[string]any{"refund_outcome": string(out)})
		return
	}
	order, _ := h.Repo.GetOrderByID(c.Request.Context(), c.Param("id"))
	Ok(c, order, map[string]any{"refund_outcome": string(out)})
}

// @Summary Run a reconciliation cycle now
// @Tags admin
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/status-sync/run [post]
func (h *AdminHandler) runStatusSync(c *gin.Context) {
	if h.Sync == nil {
		Error(c, http.StatusServiceUnavailable, "status sync unavailable", nil)
		return
	}
	res, err := h.Sync.RunOnce(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary Approve a pending deposit
// @Tags admin
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/deposits/{id}/approve [post]
func (h *AdminHandler) approveDeposit(c *gin.Context) {
	if h.Deposits == nil {
		Error(c, http.StatusServiceUnavailable, "deposits unavailable", nil)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	tx, err := h.Deposits.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, tx, nil)
}

// @Summary Reject a pending deposit
// @Tags admin
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/deposits/{id}/reject [post]
func (h *AdminHandler) rejectDeposit(c *gin.Context) {
	if h.Deposits == nil {
		Error(c, http.StatusServiceUnavailable, "deposits unavailable", nil)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	tx, err := h.Deposits.Reject(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, tx, nil)
}

type createServiceRequest struct {
	Platform    string `json:"platform" binding:"required"`
	ServiceType string `json:"service_type" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Rate        string `json:"rate" binding:"required"`
	MinQuantity int    `json:"min_quantity" binding:"required"`
	MaxQuantity int    `json:"max_quantity" binding:"required"`
	Description string `json:"description"`
}

// @Summary Create a catalog service
// @Tags admin
// @Accept json
// @Param request body createServiceRequest true "service"
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/services [post]
func (h *AdminHandler) createService(c *gin.Context) {
	var req createServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil || rate.LessThanOrEqual(decimal.Zero) {
		Error(c, http.StatusBadRequest, "invalid rate", nil)
		return
	}
	if req.MinQuantity <= 0 || req.MaxQuantity < req.MinQuantity {
		Error(c, http.StatusBadRequest, "invalid quantity bounds", nil)
		return
	}
	now := time.Now().UTC()
	item := &models.Service{
		ID:          uuid.NewString(),
		Platform:    req.Platform,
		ServiceType: req.ServiceType,
		Name:        req.Name,
		Rate:        rate,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Repo.InsertService(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Operational stats
// @Tags admin
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/stats [get]
func (h *AdminHandler) stats(c *gin.Context) {
	byStatus, err := h.Repo.CountOrdersByStatus(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	pendingDeposits, err := h.Repo.CountPendingDeposits(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	users, err := h.Repo.CountUsers(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"orders_by_status":     byStatus,
		"pending_deposits":     pendingDeposits,
		"users":                users,
		"delegation_available": service.DelegationAvailable(c.Request.Context(), h.Cache),
	}, nil)
}

// @Summary List system settings
// @Tags admin
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/settings [get]
func (h *AdminHandler) listSettings(c *gin.Context) {
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), repository.ListSystemSettingsParams{
		Limit:   intQuery(c, "limit", 200),
		Offset:  intQuery(c, "offset", 0),
		Prefix:  strQueryPtr(c, "prefix"),
		OrderBy: "key",
		Asc:     boolPtr(true),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type setSettingRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Toggle a feature switch
// @Tags admin
// @Accept json
// @Param request body setSettingRequest true "value"
// @Success 200 {object} map[string]any
// @Router /api/v1/admin/settings/{key} [put]
func (h *AdminHandler) setSetting(c *gin.Context) {
	if h.Flags == nil {
		Error(c, http.StatusServiceUnavailable, "settings unavailable", nil)
		return
	}
	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Flags.SetEnabled(c.Request.Context(), c.Param("key"), req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, err := h.Repo.GetSystemSettingByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}
