package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/service"
	"github.com/bigballadanny/dwschatbot/pkg/httpmiddleware"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// maxUploadBytes bounds a single transcript upload.
const maxUploadBytes = 32 << 20

// API provides handlers for the transcript service.
type API struct {
	service  *service.TranscriptService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewAPI creates a new API handler.
func NewAPI(svc *service.TranscriptService, log *logger.Logger) *API {
	return &API{
		service: svc,
		logger:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement a proper origin check.
			},
		},
	}
}

// UploadHandler accepts a multipart transcript upload and queues it for
// processing. The response carries the new document id; progress arrives
// over the WebSocket.
func (a *API) UploadHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A transcript file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload exceeds the size limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to open uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to read uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload exceeds the size limit"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Uploaded file is empty"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}
	source := c.PostForm("source")
	contentType := fileHeader.Header.Get("Content-Type")

	documentID, err := a.service.Upload(c.Request.Context(), userID, title, source, contentType, data)
	if err != nil {
		// The service layer already logged the detailed error.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept upload"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"document_id": documentID})
}

// ListHandler returns the caller's documents, optionally filtered by a
// source tag glob given as the "source" query parameter.
func (a *API) ListHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)

	docs, err := a.service.List(c.Request.Context(), userID, c.Query("source"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidPattern) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// StatusHandler returns one document with its processing state.
func (a *API) StatusHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)
	documentID := c.Param("id")

	status, err := a.service.Status(c.Request.Context(), userID, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// ReprocessHandler resets a document's pipeline and runs it again.
func (a *API) ReprocessHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)
	documentID := c.Param("id")

	if err := a.service.Reprocess(c.Request.Context(), userID, documentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue reprocessing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"document_id": documentID})
}

// BulkReprocessHandler reprocesses every document of the caller whose
// source tag matches the given glob pattern.
func (a *API) BulkReprocessHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)

	var req struct {
		SourceGlob string `json:"source_glob" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A source_glob pattern is required"})
		return
	}

	queued, err := a.service.ReprocessMatching(c.Request.Context(), userID, req.SourceGlob)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPattern) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue reprocessing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"document_ids": queued, "count": len(queued)})
}

// AuditHandler returns the newest audit entries of a document.
func (a *API) AuditHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)
	documentID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	entries, err := a.service.Audit(c.Request.Context(), userID, documentID, limit)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit trail"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// DeleteHandler removes a document with everything derived from it.
func (a *API) DeleteHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)
	documentID := c.Param("id")

	if err := a.service.Delete(c.Request.Context(), userID, documentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}

	c.Status(http.StatusNoContent)
}

// StuckHandler returns processing states the sweeper considers stuck.
func (a *API) StuckHandler(c *gin.Context) {
	states, err := a.service.Stuck(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list stuck documents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": states})
}

// WebSocketHandler upgrades the connection and streams processing progress
// for the caller's documents.
func (a *API) WebSocketHandler(c *gin.Context) {
	userID := c.GetString(httpmiddleware.ContextUserID)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}

	a.service.AddConnection(userID, conn)

	go func() {
		defer a.service.RemoveConnection(userID, conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				break
			}
		}
	}()
}
