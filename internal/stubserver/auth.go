package stubserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKeyClaims is the Gin context key for token claims.
const contextKeyClaims = "claims"

// Claims is the identity token attached to exam calls. The stub only issues
// guest identities; the subject is a random taker id.
type Claims struct {
	TakerID string `json:"taker_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates the guest identity tokens the exam routes
// require.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

// NewTokenIssuer creates an issuer with an HS256 secret.
func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiry: expiry}
}

// MintGuest issues a guest token for a fresh taker identity.
func (t *TokenIssuer) MintGuest() (string, error) {
	now := time.Now()
	claims := Claims{
		TakerID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "guest",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses and verifies a token string.
func (t *TokenIssuer) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// RequireToken validates the bearer identity header on exam routes.
func RequireToken(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity token required"})
			return
		}

		claims, err := issuer.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid identity token"})
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}
