package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/orchestrator-api/internal/utils/requestctx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(v *Validator, configure func(r *http.Request)) *httptest.ResponseRecorder {
	router := gin.New()
	router.Use(v.Middleware())
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+requestctx.UserID(c.Request.Context()))
	})
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	configure(req)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Disabled(t *testing.T) {
	v := &Validator{log: zerolog.Nop()}

	rec := serve(v, func(r *http.Request) { r.Header.Set(UserIDHeader, "user-1") })
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1|user-1", rec.Body.String())

	rec = serve(v, func(r *http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_JWT(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := &Validator{
		enabled:  true,
		issuer:   "https://auth.example.com/realms/jan",
		audience: "orchestrator",
		keyFunc:  func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		log:      zerolog.Nop(),
	}

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	valid := jwt.MapClaims{
		"sub": "user-42",
		"iss": v.issuer,
		"aud": "orchestrator",
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	rec := serve(v, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(valid)) })
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42|user-42", rec.Body.String())

	wrongAudience := jwt.MapClaims{"sub": "user-42", "iss": v.issuer, "aud": "other", "exp": valid["exp"]}
	rec = serve(v, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(wrongAudience)) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := jwt.MapClaims{"sub": "user-42", "iss": v.issuer, "aud": "orchestrator", "exp": time.Now().Add(-time.Hour).Unix()}
	rec = serve(v, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(expired)) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(v, func(r *http.Request) { r.Header.Set(UserIDHeader, "user-1") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}
