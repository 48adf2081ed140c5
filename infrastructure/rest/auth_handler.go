package rest

import (
	"chatto/domain"
	"chatto/errors"
	"chatto/services"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	log         *slog.Logger
	authService services.IAuthService
}

func NewAuthHandler(log *slog.Logger, authService services.IAuthService) *AuthHandler {
	return &AuthHandler{log: log, authService: authService}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    domain.PublicUser `json:"user"`
}

type userResponse struct {
	Success bool              `json:"success"`
	User    domain.PublicUser `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	if _, err := h.authService.Register(c.Request.Context(), req.Email, req.Password); err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Registration successful"})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Success: true, Token: token.String(), User: user})
}

func (h *AuthHandler) Verify(c *gin.Context) {
	c.JSON(http.StatusOK, userResponse{Success: true, User: MustIdentity(c).User})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), MustIdentity(c).SessionID); err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.log, errors.ErrInvalidBody)
		return
	}
	identity := MustIdentity(c)
	if err := h.authService.ChangePassword(c.Request.Context(), identity.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Password changed"})
}
