package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bigballadanny/dwschatbot/internal/chat_service/service"
	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/pkg/httpmiddleware"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// API provides handlers for the chat service.
type API struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(svc *service.ChatService, log *logger.Logger) *API {
	return &API{service: svc, logger: log}
}

// AskHandler answers one question grounded in the caller's transcripts.
func (a *API) AskHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)

	var payload struct {
		ConversationID string `json:"conversation_id"`
		Question       string `json:"question" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	answer, err := a.service.Ask(c.Request.Context(), userID, payload.ConversationID, payload.Question)
	if err != nil {
		a.logger.WithUser(userID).WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to answer question")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer question"})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// HistoryHandler returns the recent turns of a conversation.
func (a *API) HistoryHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)
	conversationID := c.Param("id")

	turns, err := a.service.History(c.Request.Context(), userID, conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

// ResetHandler drops a conversation's history.
func (a *API) ResetHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)
	conversationID := c.Param("id")

	if err := a.service.Reset(c.Request.Context(), userID, conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset conversation"})
		return
	}

	c.Status(http.StatusNoContent)
}
