package handlers

import (
	"context"
	"net/http"

	"Resilix/pkg/response"

	"github.com/gin-gonic/gin"
)

type ChatMessageForm struct {
	Message string `json:"message" binding:"required"`
}

// handleChatbot 与急救建议共用同一个 LLM 客户端
func (h *Handlers) handleChatbot(c *gin.Context) {
	var form ChatMessageForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.AbortWithError(c, bindError(err))
		return
	}
	if h.llm == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "chatbot is not configured"})
		return
	}

	ctx := c.Request.Context()
	if h.cfg.LLM.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.LLM.Timeout)
		defer cancel()
	}
	reply, err := h.llm.Query(ctx, h.cfg.LLM.Model, "User: "+form.Message+"\nBot:", h.cfg.LLM.MaxTokens)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply})
}
