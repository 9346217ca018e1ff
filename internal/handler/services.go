package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"boostpanel/internal/repository"
)

type ServiceHandler struct {
	Repo repository.Repository
}

func (h *ServiceHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/services")
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

// @Summary List catalog services
// @Tags services
// @Param platform query string false "platform filter"
// @Success 200 {object} map[string]any
// @Router /api/v1/services [get]
func (h *ServiceHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListServicesParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		Platform: strQueryPtr(c, "platform"),
		OrderBy:  "name",
		Asc:      boolPtr(true),
	}
	items, err := h.Repo.ListServices(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Get one catalog service
// @Tags services
// @Success 200 {object} map[string]any
// @Router /api/v1/services/{id} [get]
func (h *ServiceHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetServiceByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "service not found", nil)
		return
	}
	Ok(c, item, nil)
}
