package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"librarium/api/internal/ids"
	"librarium/api/internal/models"
)

type contactRequest struct {
	Name    string `json:"name" binding:"required,max=200"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"required,max=200"`
	Message string `json:"message" binding:"required,max=5000"`
}

func (h HandlerSet) CreateContactMessage(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := models.ContactMessage{
		ID:      ids.New(),
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}

	if err := h.contacts.Create(c.Request.Context(), msg); err != nil {
		h.log.Error().Err(err).Msg("store contact message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "thanks, we will get back to you"})
}
