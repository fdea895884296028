package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type chatbotRequest struct {
	Message string `json:"message" binding:"required,max=500"`
}

func (h HandlerSet) Chatbot(c *gin.Context) {
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.chatbot.Reply(c.Request.Context(), req.Message)
	if err != nil {
		h.log.Error().Err(err).Msg("chatbot reply failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
