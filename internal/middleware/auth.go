// Package middleware carries the HTTP cross-cutting concerns: wallet
// session auth, admin key verification, and request log enrichment.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextWalletKey is the gin context key holding the authenticated
// wallet address.
const ContextWalletKey = "wallet_address"

// WalletClaims are the session token claims. The main webapp issues these
// tokens after wallet signature verification; this service only validates.
type WalletClaims struct {
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates wallet session tokens.
type AuthMiddleware struct {
	secretKey []byte
}

func NewAuthMiddleware(secretKey string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
	}
}

// RequireAuth validates the Bearer token and stores the wallet address in
// the request context. Requests without a valid session get 401.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Bearer scheme is case-insensitive per RFC 6750.
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" || tokenParts[1] == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := am.ValidateToken(tokenParts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		c.Set(ContextWalletKey, strings.ToLower(claims.WalletAddress))
		c.Next()
	}
}

// GenerateToken creates a signed session token for a wallet.
func (am *AuthMiddleware) GenerateToken(walletAddress string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &WalletClaims{
		WalletAddress: strings.ToLower(walletAddress),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(am.secretKey)
}

// ValidateToken parses and verifies a session token.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*WalletClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WalletClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*WalletClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.WalletAddress == "" {
		return nil, fmt.Errorf("token carries no wallet address")
	}
	return claims, nil
}

// WalletFromContext returns the wallet address set by RequireAuth.
func WalletFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get(ContextWalletKey)
	if !exists {
		return "", false
	}
	wallet, ok := value.(string)
	return wallet, ok && wallet != ""
}
