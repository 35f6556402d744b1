// Audit HTTP handlers.
//
// This file exposes read access to the hash-chained audit ledger:
//   - GET /audit         (list, paginated, filterable by subject)
//   - GET /audit/verify  (recompute the chain over a range)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/utils"
)

// ListAuditResponse wraps a page of audit events and pagination info.
type ListAuditResponse struct {
	Events     []domain.AuditEvent `json:"events"`
	Pagination Pagination          `json:"pagination"`
}

// ListAudit godoc
// @ID          listAudit
// @Summary     List audit events (paginated)
// @Description Returns audit ledger entries newest first, optionally filtered by subject (ref_type + ref_id). Payloads are stored redacted.
// @Tags        Audit
// @Produce     json
//
// @Param       ref_type   query  string  false "Subject type (command, agent, grant)"
// @Param       ref_id     query  string  false "Subject ID"
// @Param       page       query  int     false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListAuditResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /audit [get]
func (h *Handlers) ListAudit(c *gin.Context) {
	page, pageSize := clampPagination(c)
	events, total, err := h.auditSvc.List(c.Request.Context(),
		strings.TrimSpace(c.Query("ref_type")), strings.TrimSpace(c.Query("ref_id")),
		page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListAuditResponse{
		Events:     events,
		Pagination: buildPagination(page, pageSize, total),
	})
}

// VerifyAudit godoc
// @ID          verifyAudit
// @Summary     Verify the audit hash chain
// @Description Recomputes the hash chain over [from, to] and reports the first corrupt entry, if any. to=0 verifies through the newest event.
// @Tags        Audit
// @Produce     json
//
// @Param       from  query  int  false "First event ID (default 1)" minimum(1)
// @Param       to    query  int  false "Last event ID (0 = newest)"
//
// @Success     200  {object} services.VerifyResult
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /audit/verify [get]
func (h *Handlers) VerifyAudit(c *gin.Context) {
	from := utils.AtoiDefault(c.Query("from"), 1)
	if from < 1 {
		from = 1
	}
	to := utils.AtoiDefault(c.Query("to"), 0)
	if to < 0 {
		to = 0
	}
	res, err := h.auditSvc.VerifyChain(c.Request.Context(), uint64(from), uint64(to))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
