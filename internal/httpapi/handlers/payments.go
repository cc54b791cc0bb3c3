package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/common"
	"github.com/printlink/print-platform/internal/models"
)

type confirmPaymentReq struct {
	JobID string `json:"job_id" binding:"required"`
}

// ConfirmPayment is the payment-completion hook: it marks the job paid and
// opens the chat session between its two participants. Safe to call more
// than once for the same job.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var job models.PrintJob
	if err := h.DB.WithContext(c.Request.Context()).First(&job, "id = ?", req.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40405, "print job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if job.CustomerID == nil || job.AgentID == nil {
		common.Fail(c, http.StatusBadRequest, 40012, "print job has no participants")
		return
	}

	if err := h.DB.WithContext(c.Request.Context()).Model(&job).
		Update("payment_status", models.JobCompleted).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	session, initial, err := h.ChatSvc.CreateSession(c.Request.Context(), job.ID, *job.CustomerID, *job.AgentID)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{
		"session":         session,
		"initial_message": initial,
	})
}

type finishJobReq struct {
	CompletedBy string `json:"completed_by"`
}

// FinishJob is called when a job is marked done outside chat; it closes the
// job's session with the given attribution.
func (h *Handler) FinishJob(c *gin.Context) {
	var req finishJobReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	by := chat.CompletedByAgent
	switch chat.CompletedBy(req.CompletedBy) {
	case chat.CompletedSystem:
		by = chat.CompletedSystem
	case chat.CompletedAuto:
		by = chat.CompletedAuto
	}

	jobID := c.Param("job_id")
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.PrintJob{}).
		Where("id = ?", jobID).
		Update("status", models.JobCompleted).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	session, err := h.ChatSvc.CompleteByJob(c.Request.Context(), jobID, by)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"session": session})
}
