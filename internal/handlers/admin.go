package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"librarium/api/internal/models"
	"librarium/api/internal/repository"
)

func (h HandlerSet) AdminListLoans(c *gin.Context) {
	limit, offset := pagination(c)

	loans, err := h.libraryService.ListLoans(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("admin list loans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		items = append(items, toLoanResponse(loan))
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	limit, offset := pagination(c)

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("admin list users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, map[string]any{
			"id":          user.ID,
			"email":       user.Email,
			"displayName": user.DisplayName,
			"role":        user.Role,
			"status":      user.Status,
			"createdAt":   user.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h HandlerSet) AdminUpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := models.UserRole(req.Role)
	if !models.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role"})
		return
	}

	if err := h.users.UpdateRole(c.Request.Context(), c.Param("userId"), role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
			return
		}
		h.log.Error().Err(err).Msg("update role failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}

func (h HandlerSet) AdminListContactMessages(c *gin.Context) {
	limit, offset := pagination(c)

	messages, err := h.contacts.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("admin list contact messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": messages})
}

func (h HandlerSet) AdminStats(c *gin.Context) {
	stats, err := h.libraryService.Stats(c.Request.Context(), h.users)
	if err != nil {
		h.log.Error().Err(err).Msg("stats aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func pagination(c *gin.Context) (limit int, offset int) {
	limit = 50
	offset = 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}
