// Package signature implements the keyed signing of dispatched commands and
// its verification on the agent side.
//
// Every command handed to an agent is signed with that agent's provisioned
// shared secret over a canonical serialization of a fixed, explicitly ordered
// field set. The agent recomputes the same bytes and compares; any mismatch
// is fatal for that command instance (ErrInvalid) and must never be retried
// automatically: it signals either a compromised channel or clock/secret
// desynchronization that needs operator attention.
//
// Canonical form: the Envelope struct is marshaled with encoding/json, whose
// output for a struct is the fields in declaration order with no incidental
// whitespace. Params is carried as an opaque, pre-compacted JSON string so
// the signer never re-orders keys the proposer chose.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// ErrInvalid is returned by Verify when the signature does not match the
// canonical form of the envelope under the given secret.
var ErrInvalid = errors.New("signature invalid")

// Envelope is the fixed, ordered field set covered by a command signature.
// Field order is load-bearing: changing it changes every signature.
type Envelope struct {
	CommandID   string   `json:"command_id"`
	SiteID      string   `json:"site_id"`
	ZoneID      string   `json:"zone_id"`
	TargetIDs   []string `json:"target_ids"`
	CommandType string   `json:"command_type"`
	Params      string   `json:"params"`
	Priority    int      `json:"priority"`
	ExpiresAt   int64    `json:"expires_at"`
	DedupeKey   string   `json:"dedupe_key"`
	SignedAt    int64    `json:"signed_at"`
	Nonce       string   `json:"nonce"`
}

// EnvelopeFor builds the signing envelope for a command at the given signing
// instant. Timestamps are carried as Unix seconds so both sides hash
// identical bytes regardless of time-zone formatting.
func EnvelopeFor(c *domain.Command, nonce string, signedAt time.Time) Envelope {
	env := Envelope{
		CommandID:   c.ID,
		SiteID:      c.SiteID,
		ZoneID:      c.ZoneID,
		TargetIDs:   c.TargetIDs,
		CommandType: string(c.CommandType),
		Params:      compactJSON(c.Params),
		Priority:    c.Priority,
		ExpiresAt:   c.ExpiresAt.Unix(),
		SignedAt:    signedAt.Unix(),
		Nonce:       nonce,
	}
	if c.DedupeKey != nil {
		env.DedupeKey = *c.DedupeKey
	}
	return env
}

// Canonical returns the deterministic byte serialization of the envelope.
func Canonical(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical envelope under
// the agent's secret.
func Sign(secret string, env Envelope) (string, error) {
	b, err := Canonical(env)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(b)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature for the envelope and compares it with sig
// in constant time. Returns ErrInvalid on mismatch.
func Verify(secret string, env Envelope, sig string) error {
	want, err := Sign(secret, env)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrInvalid
	}
	return nil
}

// NewNonce returns a fresh single-use nonce for a dispatched command.
func NewNonce() string { return uuid.NewString() }

// compactJSON strips incidental whitespace from a JSON document. Invalid or
// empty input is passed through untouched; signing still succeeds and
// verification fails only if the two sides disagree on the bytes.
func compactJSON(s string) string {
	if s == "" {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
