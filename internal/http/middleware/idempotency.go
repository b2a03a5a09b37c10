package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets clients retry chat-creating requests (fork,
// duplicate) without creating a second chat.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemResult = "idem.result"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyLookup returns the stored result of an earlier request with the
// same (caller, scope, key). Lookup errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, caller, scope, key string) (result string, found bool, err error)

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	MaxLen  int            // default 200
	Pattern *regexp.Regexp // default ^[A-Za-z0-9._~\-:]+$
	// Scope names the operation a key belongs to. Defaults to the request
	// path, so the same key used on two different chats never collides.
	Scope func(*gin.Context) string
}

// Idempotency validates the Idempotency-Key header and, when a stored
// result exists, marks the request as a replay. Handlers serve replays with
// ReplayResult and record fresh outcomes under IdempotencyScope. Requests
// without the header pass through untouched; malformed keys get 400.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = func(c *gin.Context) string { return c.Request.Method + " " + c.Request.URL.Path }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		scope := scopeOf(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil {
			res, found, err := lookup(c.Request.Context(), CallerFrom(c), scope, key)
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
			} else if found {
				c.Set(ctxKeyIdemResult, res)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IdempotencyScope returns the scope the key was looked up under.
func IdempotencyScope(c *gin.Context) string { return c.GetString(ctxKeyIdemScope) }

// ReplayResult returns the stored result when this request is a replay.
func ReplayResult(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemResult)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
