package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"boostpanel/internal/auth"
	"boostpanel/internal/repository"
	"boostpanel/internal/service"
)

type AuthHandler struct {
	Repo     repository.Repository
	Accounts *service.AccountService
	JWT      auth.JWT
}

func (h *AuthHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.GET("/me", auth.Middleware(h.JWT), h.me)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary Register a new account
// @Tags auth
// @Accept json
// @Param request body registerRequest true "registration"
// @Success 200 {object} map[string]any
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	if h.Accounts == nil {
		Error(c, http.StatusServiceUnavailable, "accounts unavailable", nil)
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user, err := h.Accounts.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	token, expiresAt, err := h.JWT.Sign(auth.Claims{UserID: user.ID, Role: user.Role})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user": user, "token": token, "expires_at": expiresAt}, nil)
}

// @Summary Log in
// @Tags auth
// @Accept json
// @Param request body loginRequest true "credentials"
// @Success 200 {object} map[string]any
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	if h.Accounts == nil {
		Error(c, http.StatusServiceUnavailable, "accounts unavailable", nil)
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			Error(c, http.StatusUnauthorized, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	token, expiresAt, err := h.JWT.Sign(auth.Claims{UserID: user.ID, Role: user.Role})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user": user, "token": token, "expires_at": expiresAt}, nil)
}

// @Summary Current account
// @Tags auth
// @Success 200 {object} map[string]any
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || h.Repo == nil {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	user, err := h.Repo.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	Ok(c, user, nil)
}
