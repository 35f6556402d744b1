// Package services – AuditService
//
// This file implements the append-only, hash-chained audit ledger that every
// other component writes to on every state transition. Each appended event
// links to its predecessor via event_hash = SHA-256(prev_hash ∥
// canonical(payload)); recomputing the chain over any range proves that no
// historical record has been altered.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/fleetops/go-command-plane/internal/domain"
	"github.com/fleetops/go-command-plane/internal/repo"
)

// GenesisHash is the prev_hash of the first ledger row.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// auditAppendMu serializes ledger appends process-wide. The chain link
// depends on the previous row's hash, so two concurrent appends must not
// both read the same predecessor. The ledger is shared state: the HTTP
// layer and the recovery sweep each hold their own AuditService over the
// same database, so the lock cannot live on the instance.
var auditAppendMu sync.Mutex

// AuditService appends to and verifies the hash-chained audit ledger.
// Reads are unguarded; appends serialize on auditAppendMu.
type AuditService struct {
	// DB is the GORM handle used for ledger persistence.
	DB *gorm.DB
}

// VerifyResult is the outcome of a chain verification pass.
type VerifyResult struct {
	OK      bool   `json:"ok"`
	Checked int    `json:"checked"`
	// BadID is the position of the first row that failed recomputation;
	// zero when the chain is intact.
	BadID uint64 `json:"bad_id,omitempty"`
}

// Append records one audit event. The payload map is redacted (secrets and
// signatures are masked) and serialized canonically before hashing;
// encoding/json emits map keys in sorted order with no incidental whitespace.
//
// Audit failures are returned to the caller; components treat the append as
// part of the transition and surface the error rather than dropping the
// record.
func (s *AuditService) Append(ctx context.Context, eventType, actorType, actorID, refType, refID string, payload map[string]any) (*domain.AuditEvent, error) {
	canonical, err := canonicalPayload(payload)
	if err != nil {
		return nil, err
	}

	auditAppendMu.Lock()
	defer auditAppendMu.Unlock()

	prev := GenesisHash
	last, err := repo.LastAuditEvent(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if last != nil {
		prev = last.EventHash
	}

	e := &domain.AuditEvent{
		EventType: eventType,
		ActorType: actorType,
		ActorID:   actorID,
		RefType:   refType,
		RefID:     refID,
		Payload:   canonical,
		PrevHash:  prev,
		EventHash: chainHash(prev, canonical),
	}
	if err := repo.AppendAuditEvent(ctx, s.DB, e); err != nil {
		return nil, err
	}
	return e, nil
}

// VerifyChain recomputes event hashes for rows with from <= id <= to (to=0
// means the end of the ledger) and returns the position of the first
// mismatch, if any. The row preceding the range anchors the first link; for
// from <= 1 the genesis value anchors it.
func (s *AuditService) VerifyChain(ctx context.Context, from, to uint64) (*VerifyResult, error) {
	if from == 0 {
		from = 1
	}

	prev := GenesisHash
	if from > 1 {
		anchor, err := repo.ListAuditRange(ctx, s.DB, from-1, from-1)
		if err != nil {
			return nil, err
		}
		if len(anchor) != 1 {
			// A missing anchor row is itself a chain violation.
			return &VerifyResult{OK: false, BadID: from - 1}, nil
		}
		prev = anchor[0].EventHash
	}

	rows, err := repo.ListAuditRange(ctx, s.DB, from, to)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{OK: true}
	expectID := from
	for i := range rows {
		e := &rows[i]
		if e.ID != expectID || e.PrevHash != prev || e.EventHash != chainHash(prev, e.Payload) {
			return &VerifyResult{OK: false, Checked: res.Checked, BadID: e.ID}, nil
		}
		prev = e.EventHash
		expectID = e.ID + 1
		res.Checked++
	}
	return res, nil
}

// List returns a page of audit events, newest first, optionally filtered by
// the referenced entity.
func (s *AuditService) List(ctx context.Context, refType, refID string, page, pageSize int) ([]domain.AuditEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return repo.ListAuditPage(ctx, s.DB, refType, refID, (page-1)*pageSize, pageSize)
}

// chainHash computes SHA-256(prevHash ∥ canonicalPayload), hex-encoded.
func chainHash(prevHash, canonical string) string {
	sum := sha256.Sum256([]byte(prevHash + canonical))
	return hex.EncodeToString(sum[:])
}

// canonicalPayload serializes a payload map deterministically after masking
// sensitive values. Nil maps serialize as the empty object.
func canonicalPayload(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(redact(payload))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// redact masks values under keys that carry credentials or signatures.
// Nested maps are redacted recursively.
func redact(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "secret") || strings.Contains(lk, "signature") || strings.Contains(lk, "token") {
			out[k] = "[REDACTED]"
			continue
		}
		if m, ok := v.(map[string]any); ok {
			out[k] = redact(m)
			continue
		}
		out[k] = v
	}
	return out
}
