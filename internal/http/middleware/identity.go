package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// CallerKey is the Gin context key holding the resolved caller id.
	CallerKey = "userID"
	// HeaderUserID carries the caller id for trusted or local clients.
	HeaderUserID = "X-User-ID"
)

// ErrInvalidToken is returned for bearer tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. The caller id is read from the userId claim
// and falls back to the registered subject.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Caller returns the id carried by the claims.
func (c *Claims) Caller() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// IdentityOptions configures Identity.
type IdentityOptions struct {
	// JWTSecret verifies HS256 tokens. Empty disables token lookup.
	JWTSecret string
	// Cookie names the cookie holding the caller id.
	Cookie string
	// Ensure, when set, is called once per request with a non-empty caller.
	// Failures are logged and never block the request.
	Ensure func(ctx context.Context, userID string) error
}

// Identity resolves the caller for every request in this order: a bearer
// token (Authorization header or ?token=), the identity cookie, then the
// X-User-ID header. A token that is present but invalid aborts with 401.
// A request without any identity proceeds anonymously.
func Identity(opts IdentityOptions) gin.HandlerFunc {
	secret := []byte(opts.JWTSecret)
	return func(c *gin.Context) {
		caller, err := resolveCaller(c, secret, opts.Cookie)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    err.Error(),
			})
			return
		}
		if caller != "" {
			c.Set(CallerKey, caller)
			if opts.Ensure != nil {
				if err := opts.Ensure(c.Request.Context(), caller); err != nil {
					LoggerFrom(c).Warn().Err(err).Str("user_id", caller).Msg("ensure user failed")
				}
			}
		}
		c.Next()
	}
}

// CallerFrom returns the caller id resolved by Identity, or "".
func CallerFrom(c *gin.Context) string {
	if v, ok := c.Get(CallerKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func resolveCaller(c *gin.Context, secret []byte, cookie string) (string, error) {
	if len(secret) > 0 {
		if raw := bearerToken(c); raw != "" {
			claims, err := ParseToken(raw, secret)
			if err != nil {
				return "", err
			}
			return claims.Caller(), nil
		}
	}
	if cookie != "" {
		if v, err := c.Cookie(cookie); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return strings.TrimSpace(c.GetHeader(HeaderUserID)), nil
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}

// ParseToken verifies an HS256 token and returns its claims. Tokens without
// a caller id are rejected.
func ParseToken(raw string, secret []byte) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Caller() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignToken issues an HS256 token for userID. Used by tooling and tests.
func SignToken(userID string, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: userID}).SignedString(secret)
}
