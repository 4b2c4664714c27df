package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"muster/api/internal/middleware"
	"muster/api/internal/models"
	"muster/api/internal/service"
)

func (h HandlerSet) Me(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	user, err := h.userService.Get(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}

type patchUserRequest struct {
	Roles       *[]string `json:"roles"`
	IsActive    *bool     `json:"isActive"`
	DisplayName *string   `json:"displayName"`
}

func (h HandlerSet) PatchUser(c *gin.Context) {
	var req patchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	patch := service.UserPatch{
		IsActive:    req.IsActive,
		DisplayName: req.DisplayName,
	}
	if req.Roles != nil {
		roles, err := models.ParseRoles(*req.Roles)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
			return
		}
		patch.Roles = &roles
	}

	identity, _ := middleware.CurrentIdentity(c)
	user, err := h.userService.Patch(c.Request.Context(), identity, c.Param("id"), patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}
