// Agent HTTP handlers.
//
// This file exposes the agent-facing protocol and registry:
//   - POST /agents            (register, returns the signing secret once)
//   - POST /agents/grants     (authorize a proposer for a device)
//   - POST /agents/{id}/poll  (claim and receive signed commands)
//   - POST /agents/{id}/ack   (report an execution outcome)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/go-command-plane/internal/services"
)

// RegisterAgentRequest is the JSON payload for registering an agent.
type RegisterAgentRequest struct {
	// AgentID is the unique agent identity.
	AgentID string `json:"agent_id" binding:"required" example:"agent-atx-04-01"`
	// SiteID is the site this agent serves.
	SiteID string `json:"site_id" binding:"required" example:"site-atx-04"`
	// ZoneID is the agent's zone; required when ZoneBound.
	ZoneID string `json:"zone_id" example:"zone-2"`
	// ZoneBound restricts the agent to commands for its own zone.
	ZoneBound bool `json:"zone_bound"`
}

// RegisterAgentResponse returns the registered agent plus its signing
// secret. The secret appears only in this response and is never stored
// readably or logged.
type RegisterAgentResponse struct {
	AgentID string `json:"agent_id"`
	SiteID  string `json:"site_id"`
	ZoneID  string `json:"zone_id,omitempty"`
	Secret  string `json:"secret"`
}

// GrantRequest is the JSON payload for granting device scope.
type GrantRequest struct {
	// ProposerID is the operator receiving the grant.
	ProposerID string `json:"proposer_id" binding:"required" example:"op-17"`
	// TargetID is the device being granted, or "*" for all devices.
	TargetID string `json:"target_id" binding:"required" example:"dev-0a1"`
}

// PollRequest is the JSON payload for an agent poll.
type PollRequest struct {
	// SiteID must match the agent's registered site when set.
	SiteID string `json:"site_id" example:"site-atx-04"`
	// Limit caps commands returned; server default when 0.
	Limit int `json:"limit" example:"10"`
}

// AckRequest is the JSON payload for acknowledging a command.
type AckRequest struct {
	// CommandID identifies the command being acknowledged.
	CommandID string `json:"command_id" binding:"required" format:"uuid"`
	// Status is the execution outcome: succeeded, failed, or expired.
	Status string `json:"status" binding:"required" example:"succeeded"`
	// ResultCode is the device-protocol result code (0 = success).
	ResultCode int `json:"result_code"`
	// Message is a human-readable outcome description.
	Message string `json:"message" example:"restarted 12 devices"`
	// Nonce echoes the dispatch nonce.
	Nonce string `json:"nonce"`
}

// RegisterAgent godoc
// @ID          registerAgent
// @Summary     Register an agent
// @Description Provisions a field agent and mints its HMAC signing secret. The secret is returned exactly once.
// @Tags        Agents
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterAgentRequest  true "Registration payload"
//
// @Success     201  {object} handlers.RegisterAgentResponse
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     409  {object} handlers.ErrorResponse "Agent ID taken"
// @Router      /agents [post]
func (h *Handlers) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	agent, secret, err := h.agentSvc.Register(c.Request.Context(),
		strings.TrimSpace(req.AgentID), strings.TrimSpace(req.SiteID),
		strings.TrimSpace(req.ZoneID), req.ZoneBound)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, RegisterAgentResponse{
		AgentID: agent.ID,
		SiteID:  agent.SiteID,
		ZoneID:  agent.ZoneID,
		Secret:  secret,
	})
}

// GrantDevice godoc
// @ID          grantDevice
// @Summary     Grant device scope to a proposer
// @Description Authorizes an operator to target a device (or "*" for all). Duplicate grants succeed idempotently.
// @Tags        Agents
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.GrantRequest  true "Grant payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Router      /agents/grants [post]
func (h *Handlers) GrantDevice(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.agentSvc.Grant(c.Request.Context(),
		strings.TrimSpace(req.ProposerID), strings.TrimSpace(req.TargetID)); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// PollCommands godoc
// @ID          pollCommands
// @Summary     Poll for commands
// @Description Atomically claims eligible QUEUED commands for this agent under time-bounded leases and returns them signed. Never blocks; an empty list means no work.
// @Tags        Agents
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Agent ID"
// @Param       body  body  handlers.PollRequest  false "Poll options"
//
// @Success     200  {object} services.PollResult
// @Failure     403  {object} handlers.ErrorResponse "Site mismatch"
// @Failure     404  {object} handlers.ErrorResponse "Agent not registered"
// @Router      /agents/{id}/poll [post]
func (h *Handlers) PollCommands(c *gin.Context) {
	var req PollRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	res, err := h.dispSvc.Poll(c.Request.Context(), services.PollInput{
		AgentID: c.Param("id"),
		SiteID:  strings.TrimSpace(req.SiteID),
		Limit:   req.Limit,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// AckCommand godoc
// @ID          ackCommand
// @Summary     Acknowledge a command
// @Description Reports the execution outcome for a dispatched command. Identical replays of a processed acknowledgment return the stored result without side effects.
// @Tags        Agents
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Agent ID"
// @Param       body  body  handlers.AckRequest  true "Acknowledgment payload"
//
// @Success     200  {object} services.AckResult
// @Failure     404  {object} handlers.ErrorResponse "Command not found"
// @Failure     409  {object} handlers.ErrorResponse "Lease conflict or already terminal"
// @Router      /agents/{id}/ack [post]
func (h *Handlers) AckCommand(c *gin.Context) {
	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.ackSvc.Ack(c.Request.Context(), services.AckInput{
		CommandID:  strings.TrimSpace(req.CommandID),
		AgentID:    c.Param("id"),
		Status:     strings.ToLower(strings.TrimSpace(req.Status)),
		ResultCode: req.ResultCode,
		Message:    req.Message,
		Nonce:      req.Nonce,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
