package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	authSecret = "test-session-secret"
	authWallet = "0xAbCd00000000000000000000000000000000Ef12"
)

func authRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", am.RequireAuth(), func(c *gin.Context) {
		wallet, _ := WalletFromContext(c)
		c.JSON(http.StatusOK, gin.H{"wallet": wallet})
	})
	return router
}

func protectedRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestGenerateAndValidateToken(t *testing.T) {
	am := NewAuthMiddleware(authSecret)

	token, err := am.GenerateToken(authWallet, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := am.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "0xabcd00000000000000000000000000000000ef12", claims.WalletAddress)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateToken_Expired(t *testing.T) {
	am := NewAuthMiddleware(authSecret)

	token, err := am.GenerateToken(authWallet, -time.Hour)
	require.NoError(t, err)

	_, err = am.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewAuthMiddleware("some-other-secret")
	token, err := issuer.GenerateToken(authWallet, time.Hour)
	require.NoError(t, err)

	am := NewAuthMiddleware(authSecret)
	_, err = am.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_RejectsNonHMACSigning(t *testing.T) {
	claims := &WalletClaims{
		WalletAddress: authWallet,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	am := NewAuthMiddleware(authSecret)
	_, err = am.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected signing method")
}

func TestValidateToken_EmptyWalletRejected(t *testing.T) {
	am := NewAuthMiddleware(authSecret)

	token, err := am.GenerateToken("", time.Hour)
	require.NoError(t, err)

	_, err = am.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no wallet address")
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	router := authRouter(NewAuthMiddleware(authSecret))

	w := protectedRequest(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header required")
}

func TestRequireAuth_MalformedHeader(t *testing.T) {
	router := authRouter(NewAuthMiddleware(authSecret))

	for _, header := range []string{"Bearer", "Token abc", "Bearer  "} {
		w := protectedRequest(router, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Contains(t, w.Body.String(), "Invalid authorization header format")
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	am := NewAuthMiddleware(authSecret)
	router := authRouter(am)

	token, err := am.GenerateToken(authWallet, -time.Minute)
	require.NoError(t, err)

	w := protectedRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestRequireAuth_GarbageToken(t *testing.T) {
	router := authRouter(NewAuthMiddleware(authSecret))

	w := protectedRequest(router, "Bearer not.a.token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}

func TestRequireAuth_ValidTokenExposesWallet(t *testing.T) {
	am := NewAuthMiddleware(authSecret)
	router := authRouter(am)

	token, err := am.GenerateToken(authWallet, time.Hour)
	require.NoError(t, err)

	w := protectedRequest(router, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0xabcd00000000000000000000000000000000ef12", body["wallet"])
}

func TestRequireAuth_SchemeIsCaseInsensitive(t *testing.T) {
	am := NewAuthMiddleware(authSecret)
	router := authRouter(am)

	token, err := am.GenerateToken(authWallet, time.Hour)
	require.NoError(t, err)

	for _, scheme := range []string{"bearer", "BEARER", "Bearer"} {
		w := protectedRequest(router, scheme+" "+token)
		assert.Equal(t, http.StatusOK, w.Code, "scheme %q", scheme)
	}
}

func TestWalletFromContext_AbsentKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	wallet, ok := WalletFromContext(c)
	assert.False(t, ok)
	assert.Empty(t, wallet)
}
