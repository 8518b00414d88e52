package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/services"
)

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Text string `json:"text" binding:"required,notblank,max=4000"`
}

// SendMessage handles POST /api/v1/jobs/:id/messages - sends a message on a job
// Only the job's customer and its assigned professional may write.
func SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	message, err := services.Get().Messages.Send(c.Request.Context(), user, jobID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	// PureJSON keeps user text such as <b> unescaped
	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    message,
	})
}

// ListMessages handles GET /api/v1/jobs/:id/messages - lists messages for a job, oldest first
func ListMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	messages, err := services.Get().Messages.List(c.Request.Context(), user, jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    messages,
	})
}
