// Approval HTTP handlers.
//
// This file exposes the approval gate:
//   - POST /commands/{id}/approve  (record one approval step)
//   - POST /commands/{id}/deny     (record a denial, cancels the command)
//   - GET  /commands/{id}/approvals (list recorded decisions)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ApprovalRequest is the JSON payload for approving or denying a command.
type ApprovalRequest struct {
	// Reason documents the decision. Mandatory for denials.
	Reason string `json:"reason" example:"confirmed with site lead"`
}

// ApproveCommand godoc
// @ID          approveCommand
// @Summary     Approve a command
// @Description Records one approval step by the calling operator. When the required number of distinct approvals is reached the command is promoted to QUEUED.
// @Tags        Approvals
// @Accept      json
// @Produce     json
//
// @Param       X-Actor-ID  header  string  false "Approver ID (demo header)"
// @Param       id          path    string  true  "Command ID (UUID)" format(uuid)
// @Param       body        body    handlers.ApprovalRequest  false "Approval payload"
//
// @Success     200  {object} domain.Command
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Duplicate approver or command not pending"
// @Router      /commands/{id}/approve [post]
func (h *Handlers) ApproveCommand(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a UUID")
		return
	}
	var req ApprovalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	cmd, err := h.apprSvc.Approve(c.Request.Context(), id, actorID(c), strings.TrimSpace(req.Reason))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cmd)
}

// DenyCommand godoc
// @ID          denyCommand
// @Summary     Deny a command
// @Description Records a denial and cancels the pending command. A reason is mandatory.
// @Tags        Approvals
// @Accept      json
// @Produce     json
//
// @Param       X-Actor-ID  header  string  false "Approver ID (demo header)"
// @Param       id          path    string  true  "Command ID (UUID)" format(uuid)
// @Param       body        body    handlers.ApprovalRequest  true "Denial payload (reason required)"
//
// @Success     200  {object} domain.Command
// @Failure     400  {object} handlers.ErrorResponse "Reason missing"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Command not pending"
// @Router      /commands/{id}/deny [post]
func (h *Handlers) DenyCommand(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a UUID")
		return
	}
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "reason is required to deny a command")
		return
	}
	cmd, err := h.apprSvc.Deny(c.Request.Context(), id, actorID(c), strings.TrimSpace(req.Reason))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cmd)
}

// ListApprovals godoc
// @ID          listApprovals
// @Summary     List approval decisions
// @Tags        Approvals
// @Produce     json
//
// @Param       id  path  string  true  "Command ID (UUID)" format(uuid)
//
// @Success     200  {array}  domain.Approval
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /commands/{id}/approvals [get]
func (h *Handlers) ListApprovals(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a UUID")
		return
	}
	items, err := h.apprSvc.Approvals(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}
