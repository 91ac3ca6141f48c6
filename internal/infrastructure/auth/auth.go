package auth

import (
	"context"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/config"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
	"jan-server/services/orchestrator-api/internal/utils/requestctx"
)

const (
	// UserIDHeader names the caller when auth is disabled.
	UserIDHeader = "X-User-ID"
	// ContextUserID is the gin key holding the authenticated user.
	ContextUserID = "user_id"
)

// Validator validates JWTs using JWKS and resolves the calling user.
type Validator struct {
	enabled  bool
	issuer   string
	audience string
	keyFunc  jwt.Keyfunc
	log      zerolog.Logger
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	v := &Validator{
		enabled:  cfg.AuthEnabled,
		issuer:   strings.TrimSpace(cfg.AuthIssuer),
		audience: strings.TrimSpace(cfg.AuthAudience),
		log:      log,
	}
	if !cfg.AuthEnabled {
		return v, nil
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	})
	if err != nil {
		return nil, err
	}
	v.keyFunc = jwks.Keyfunc
	return v, nil
}

// Middleware resolves the user of every request. With auth enabled the
// subject claim of a valid bearer token is the user; otherwise the
// X-User-ID header is trusted.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := v.resolveUser(c)
		if !ok {
			return
		}
		c.Set(ContextUserID, userID)
		c.Request = c.Request.WithContext(requestctx.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func (v *Validator) resolveUser(c *gin.Context) (string, bool) {
	if !v.enabled {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			platformerrors.WriteUnauthorized(c, "missing "+UserIDHeader+" header")
			return "", false
		}
		return userID, true
	}

	tokenString := bearerToken(c.GetHeader("Authorization"))
	if tokenString == "" {
		platformerrors.WriteUnauthorized(c, "missing bearer token")
		return "", false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, v.keyFunc, opts...)
	if err != nil || !token.Valid {
		v.log.Debug().Err(err).Msg("rejected bearer token")
		platformerrors.WriteUnauthorized(c, "invalid token")
		return "", false
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		platformerrors.WriteUnauthorized(c, "token has no subject")
		return "", false
	}
	return subject, true
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	return v == nil || !v.enabled || v.keyFunc != nil
}

// UserID returns the user resolved by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
