// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used in front of
// the command API. Requests to this service routinely carry material that
// must never reach logs: agent signing secrets, command signatures, and
// bearer tokens. The logger masks sensitive headers outright and scrubs
// long hex strings (HMAC signatures, minted secrets, hash-chain values)
// and UUIDs from query strings and remaining header values. Bodies are
// never logged.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra header names whose values are replaced wholesale
// with "[REDACTED]". Matching is case-insensitive and merged with the
// built-in set (Authorization, Cookie, Set-Cookie, X-Agent-Secret).
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns a Gin middleware that logs requests and responses
// with sensitive values scrubbed. It emits structured JSON via zerolog at
// INFO, WARN for 4xx, and ERROR for 5xx.
//
// Scrub order matters: hex material first (signatures and secrets are
// 64 hex chars, which a looser pattern could partially match), then UUIDs.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	hexRE := regexp.MustCompile(`(?i)\b[0-9a-f]{32,}\b`)
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)

	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := hexRE.ReplaceAllString(s, "[REDACTED:hex]")
		out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
		return out
	}

	maskHeaders := map[string]struct{}{
		"authorization":  {},
		"cookie":         {},
		"set-cookie":     {},
		"x-agent-secret": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			val := strings.Join(vv, ", ")
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(val)
		}

		c.Next()

		status := c.Writer.Status()
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
