package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/api/shared"
	"github.com/tasklight/tasklight-api/internal/ratelimit"
)

// maxPeekBytes bounds how much of a request body the auth key function
// reads while extracting the submitted email.
const maxPeekBytes = 1 << 20

// KeyFunc derives the rate-limit identity key from a request.
type KeyFunc func(r *http.Request) string

// RateLimitMiddleware applies one sliding-window policy to the routes it
// wraps. Every evaluated response carries the X-RateLimit-* headers;
// rejections additionally carry Retry-After and a 429 body.
type RateLimitMiddleware struct {
	limiter          *ratelimit.Limiter
	policy           ratelimit.Policy
	keyFunc          KeyFunc
	forgiveOnSuccess bool
}

// NewRateLimitMiddleware creates a rate-limit middleware for the given
// policy. keyFunc defaults to IPOrUserKey when nil.
func NewRateLimitMiddleware(
	limiter *ratelimit.Limiter,
	policy ratelimit.Policy,
	keyFunc KeyFunc,
) *RateLimitMiddleware {
	if limiter == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("limiter cannot be nil for RateLimitMiddleware")
	}
	if keyFunc == nil {
		keyFunc = IPOrUserKey
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		policy:  policy,
		keyFunc: keyFunc,
	}
}

// WithForgiveOnSuccess makes the middleware remove the request's window
// entry when the wrapped handler reports success (status < 400). Used by
// the auth policy so successful logins do not count against the limit.
func (m *RateLimitMiddleware) WithForgiveOnSuccess() *RateLimitMiddleware {
	m.forgiveOnSuccess = true
	return m
}

// Limit is the middleware handler.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.keyFunc(r)
		decision := m.limiter.Admit(r.Context(), key, m.policy)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests, shared.ErrorResponse{
				Error:      "Too many requests, please try again later",
				RetryAfter: retryAfter,
			}, &ratelimit.Error{RetryAfter: decision.RetryAfter})
			return
		}

		if !m.forgiveOnSuccess {
			next.ServeHTTP(w, r)
			return
		}

		// Post-outcome hook: the handler's status reports the outcome back,
		// and successful requests stop counting against the window.
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status < http.StatusBadRequest {
			m.limiter.Forgive(r.Context(), key, decision.Member)
		}
	})
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

// WriteHeader implements http.ResponseWriter.
func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// IPOrUserKey keys by the authenticated user when present, falling back to
// the client IP. Authenticated traffic from shared IPs is therefore limited
// per user, not per network.
func IPOrUserKey(r *http.Request) string {
	if userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID); ok && userID != uuid.Nil {
		return "user:" + userID.String()
	}
	return "ip:" + clientIP(r)
}

// AuthKey keys login/registration attempts by (client IP, submitted email)
// so credential stuffing against one account is throttled without
// penalizing unrelated users behind the same IP. When no email can be read
// from the body the key degrades to the plain IP key.
func AuthKey(r *http.Request) string {
	email := peekEmail(r)
	if email == "" {
		return "ip:" + clientIP(r)
	}
	return fmt.Sprintf("auth:%s:%s", clientIP(r), email)
}

// peekEmail reads the request body far enough to extract the "email" field,
// then restores the body for the downstream handler.
func peekEmail(r *http.Request) string {
	if r.Body == nil {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	if closeErr := r.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

// clientIP extracts the client address, relying on chi's RealIP middleware
// having already resolved forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
