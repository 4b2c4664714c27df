package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"muster/api/internal/middleware"
	"muster/api/internal/models"
	"muster/api/internal/service"
)

type registerRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"displayName"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
}

type registerResponse struct {
	tokenResponse
	User userResponse `json:"user"`
}

type userResponse struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"displayName"`
	Roles       models.Roles `json:"roles"`
	IsActive    bool         `json:"isActive"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Roles:       user.Roles,
		IsActive:    user.IsActive,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func newTokenResponse(result service.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
		UserID:      result.User.ID,
	}
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		tokenResponse: newTokenResponse(result),
		User:          newUserResponse(result.User),
	})
}

// Login takes HTTP Basic credentials and returns a fresh access token.
func (h HandlerSet) Login(c *gin.Context) {
	username, password, ok := c.Request.BasicAuth()
	if !ok || username == "" {
		c.Header("WWW-Authenticate", `Basic realm="muster"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), username, password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result))
}

func (h HandlerSet) Logout(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	if err := h.authService.Logout(c.Request.Context(), identity); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) RevokeSessions(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	n, err := h.authService.RevokeSessions(c.Request.Context(), identity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}
