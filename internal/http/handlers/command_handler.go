// Command HTTP handlers.
//
// This file exposes REST endpoints for the command lifecycle:
//   - POST   /commands                (propose)
//   - GET    /commands                (list, paginated, ETag support)
//   - GET    /commands/{id}           (fetch)
//   - POST   /commands/{id}/cancel    (cancel pre-dispatch)
//   - POST   /commands/{id}/rollback  (propose compensating command)
//   - GET    /commands/stats          (per-status breakdown)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/http/middleware"
	"github.com/fleetops/go-command-plane/internal/repo"
	"github.com/fleetops/go-command-plane/internal/services"
	"github.com/fleetops/go-command-plane/internal/utils"
)

//
// Service contracts (context-aware)
//

// CommandService defines command lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CommandService interface {
	// Propose validates and records a new command.
	Propose(ctx context.Context, in services.ProposeInput) (*domain.Command, error)
	// Cancel cancels a pre-dispatch command on behalf of actorID.
	Cancel(ctx context.Context, id, actorID string) (*domain.Command, error)
	// Rollback proposes a new compensating command for a terminal one.
	Rollback(ctx context.Context, id, actorID, reason string) (*domain.Command, error)
	// Get fetches a command by ID.
	Get(ctx context.Context, id string) (*domain.Command, error)
	// ListPage returns a page of commands matching the filter and the total.
	ListPage(ctx context.Context, f repo.CommandFilter, page, pageSize int) ([]domain.Command, int64, error)
	// Stats returns the per-status breakdown for a site.
	Stats(ctx context.Context, siteID string) (*repo.CommandStats, error)
}

// ApprovalService defines approval-gate operations.
type ApprovalService interface {
	// Approve records one approval step; promotes to QUEUED when satisfied.
	Approve(ctx context.Context, commandID, approverID, reason string) (*domain.Command, error)
	// Deny records a denial and cancels the command. Reason is mandatory.
	Deny(ctx context.Context, commandID, approverID, reason string) (*domain.Command, error)
	// Approvals lists recorded decisions for a command.
	Approvals(ctx context.Context, commandID string) ([]domain.Approval, error)
}

// DispatchService defines the agent poll operation.
type DispatchService interface {
	// Poll claims and signs eligible commands for an agent.
	Poll(ctx context.Context, in services.PollInput) (*services.PollResult, error)
}

// AckService defines the agent acknowledgment operation.
type AckService interface {
	// Ack finalizes or requeues a dispatched command.
	Ack(ctx context.Context, in services.AckInput) (*services.AckResult, error)
}

// AgentService defines agent registry operations.
type AgentService interface {
	// Register provisions an agent and mints its signing secret.
	Register(ctx context.Context, id, siteID, zoneID string, zoneBound bool) (*domain.Agent, string, error)
	// Grant authorizes a proposer to target a device.
	Grant(ctx context.Context, proposerID, targetID string) error
}

// AuditService defines read access to the audit ledger.
type AuditService interface {
	// List returns a page of audit events, optionally filtered by subject.
	List(ctx context.Context, refType, refID string, page, pageSize int) ([]domain.AuditEvent, int64, error)
	// VerifyChain recomputes the hash chain over [from, to].
	VerifyChain(ctx context.Context, from, to uint64) (*services.VerifyResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for commands, approvals, agents, and
// the audit ledger. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	cmdSvc   CommandService
	apprSvc  ApprovalService
	dispSvc  DispatchService
	ackSvc   AckService
	agentSvc AgentService
	auditSvc AuditService
}

// New constructs a Handlers instance bound to the given services.
func New(cmdSvc CommandService, apprSvc ApprovalService, dispSvc DispatchService, ackSvc AckService, agentSvc AgentService, auditSvc AuditService) *Handlers {
	return &Handlers{
		cmdSvc:   cmdSvc,
		apprSvc:  apprSvc,
		dispSvc:  dispSvc,
		ackSvc:   ackSvc,
		agentSvc: agentSvc,
		auditSvc: auditSvc,
	}
}

// actorID extracts the authenticated caller identity set by the identity
// middleware. If absent, it falls back to the "X-Actor-ID" header (tests
// use it), and finally to "demo-operator".
func actorID(c *gin.Context) string {
	if s := middleware.ActorFrom(c); s != "" {
		return s
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Actor-ID")); h != "" {
			return h
		}
	}
	return "demo-operator"
}

//
// DTOs
//

// ProposeCommandRequest is the JSON payload for proposing a command.
type ProposeCommandRequest struct {
	// SiteID is the site whose agents may execute this command.
	SiteID string `json:"site_id" binding:"required" example:"site-atx-04"`
	// ZoneID optionally restricts execution to one zone.
	ZoneID string `json:"zone_id" example:"zone-2"`
	// CommandType selects the operation (RESTART, POWER_MODE, ...).
	CommandType string `json:"command_type" binding:"required" example:"RESTART"`
	// Params is a JSON object of command arguments; defaults to {}.
	Params string `json:"params" example:"{\"delay_sec\":30}"`
	// TargetIDs lists the opaque device IDs to act on.
	TargetIDs []string `json:"target_ids" binding:"required" example:"dev-0a1,dev-0a2"`
	// Priority orders dispatch; higher first.
	Priority int `json:"priority" example:"5"`
	// TTLSeconds bounds the command lifetime; server default when 0.
	TTLSeconds int `json:"ttl_seconds" example:"3600"`
	// DedupeKey suppresses duplicate active commands when set.
	DedupeKey string `json:"dedupe_key" example:"restart-rack7-2026-08-30"`
}

// RollbackCommandRequest is the JSON payload for rolling back a command.
type RollbackCommandRequest struct {
	// Reason documents why the rollback is being proposed.
	Reason string `json:"reason" example:"power mode change degraded hashrate"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListCommandsResponse wraps a page of commands and pagination info.
type ListCommandsResponse struct {
	Commands   []domain.Command `json:"commands"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func buildPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// ProposeCommand godoc
// @ID          proposeCommand
// @Summary     Propose a command
// @Description Validates, risk-classifies, and records a new command. High-risk commands enter the approval gate instead of the queue.
// @Tags        Commands
// @Accept      json
// @Produce     json
//
// @Param       X-Actor-ID  header  string  false "Operator ID (demo header)" example(op-17)
// @Param       body        body    handlers.ProposeCommandRequest  true  "Proposal payload"
//
// @Success     201  {object}  domain.Command
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Target outside proposer scope"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate dedupe key"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /commands [post]
func (h *Handlers) ProposeCommand(c *gin.Context) {
	var req ProposeCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	cmd, err := h.cmdSvc.Propose(c.Request.Context(), services.ProposeInput{
		ProposerID:  actorID(c),
		SiteID:      strings.TrimSpace(req.SiteID),
		ZoneID:      strings.TrimSpace(req.ZoneID),
		CommandType: domain.CommandType(strings.ToUpper(strings.TrimSpace(req.CommandType))),
		Params:      req.Params,
		TargetIDs:   req.TargetIDs,
		Priority:    req.Priority,
		TTLSeconds:  req.TTLSeconds,
		DedupeKey:   req.DedupeKey,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, cmd)
}

// GetCommand godoc
// @ID          getCommand
// @Summary     Fetch a command
// @Tags        Commands
// @Produce     json
//
// @Param       id  path  string  true  "Command ID (UUID)" format(uuid)
//
// @Success     200  {object}  domain.Command
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /commands/{id} [get]
func (h *Handlers) GetCommand(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a UUID")
		return
	}
	cmd, err := h.cmdSvc.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cmd)
}

// ListCommands godoc
// @ID          listCommands
// @Summary     List commands (paginated)
// @Description Returns a filtered page of commands. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Commands
// @Produce     json
//
// @Param       site_id    query  string  false "Filter by site"
// @Param       zone_id    query  string  false "Filter by zone"
// @Param       status     query  string  false "Filter by status" Enums(PENDING_APPROVAL,QUEUED,DISPATCHED,SUCCEEDED,FAILED,EXPIRED,CANCELLED)
// @Param       page       query  int     false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCommandsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /commands [get]
func (h *Handlers) ListCommands(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	f := repo.CommandFilter{
		SiteID: strings.TrimSpace(c.Query("site_id")),
		ZoneID: strings.TrimSpace(c.Query("zone_id")),
		Status: domain.CommandStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.cmdSvc.(*services.CommandService); ok {
		db = svc.DB
	}
	if db != nil && f.ZoneID == "" && f.Status == "" {
		stats, err := repo.SiteCommandStats(ctx, db, f.SiteID)
		if err == nil {
			var ts int64
			if stats.MaxUpdatedAt != nil {
				ts = stats.MaxUpdatedAt.Unix()
			}
			etag := fmt.Sprintf(`W/"commands:%s:%d:%d"`, f.SiteID, stats.Total, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.cmdSvc.ListPage(ctx, f, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}

	ok(c, http.StatusOK, ListCommandsResponse{
		Commands:   items,
		Pagination: buildPagination(page, pageSize, total),
	})
}

// CancelCommand godoc
// @ID          cancelCommand
// @Summary     Cancel a command
// @Description Cancels a command that has not yet been dispatched. Dispatched or terminal commands return 409.
// @Tags        Commands
// @Produce     json
//
// @Param       X-Actor-ID  header  string  false "Operator ID (demo header)"
// @Param       id          path    string  true  "Command ID (UUID)" format(uuid)
//
// @Success     200  {object} domain.Command
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /commands/{id}/cancel [post]
func (h *Handlers) CancelCommand(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a UUID")
		return
	}
	cmd, err := h.cmdSvc.Cancel(c.Request.Context(), id, actorID(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cmd)
}

// RollbackCommand godoc
// @ID          rollbackCommand
// @Summary     Roll back a command
// @Description Proposes a new compensating command for a SUCCEEDED or FAILED command. The new command re-enters the approval gate per its risk tier.
// @Tags        Commands
// @Accept      json
// @Produce     json
//
// @Param       X-Actor-ID  header  string  false "Operator ID (demo header)"
// @Param       id          path    string  true  "Command ID (UUID)" format(uuid)
// @Param       body        body    handlers.RollbackCommandRequest  false "Rollback payload"
//
// @Success     201  {object} domain.Command
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Command not terminal"
// @Router      /commands/{id}/rollback [post]
func (h *Handlers) RollbackCommand(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a UUID")
		return
	}
	var req RollbackCommandRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	cmd, err := h.cmdSvc.Rollback(c.Request.Context(), id, actorID(c), strings.TrimSpace(req.Reason))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, cmd)
}

// CommandStats godoc
// @ID          commandStats
// @Summary     Command status breakdown
// @Description Returns command counts by status for a site, or fleet-wide when site_id is omitted.
// @Tags        Commands
// @Produce     json
//
// @Param       site_id  query  string  false "Site to summarize"
//
// @Success     200  {object} repo.CommandStats
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /commands/stats [get]
func (h *Handlers) CommandStats(c *gin.Context) {
	stats, err := h.cmdSvc.Stats(c.Request.Context(), strings.TrimSpace(c.Query("site_id")))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}
