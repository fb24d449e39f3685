package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"cloudmedia/internal/config"
)

const (
	HeaderUserID = "X-User-ID"
	ctxUserID    = "user_id"
)

// Validator resolves the caller's identity. With auth enabled the subject of
// an RS256 JWT verified against the JWKS is used; otherwise the X-User-ID
// header.
type Validator struct {
	cfg     *config.Config
	log     zerolog.Logger
	jwks    *keyfunc.JWKS
	keyfunc jwt.Keyfunc
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	v := &Validator{cfg: cfg, log: log.With().Str("component", "auth").Logger()}
	if !cfg.AuthEnabled {
		return v, nil
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.log.Error().Err(err).Msg("jwks refresh error")
		},
	})
	if err != nil {
		return nil, err
	}
	v.jwks = jwks
	v.keyfunc = jwks.Keyfunc
	return v, nil
}

// NewStaticValidator verifies tokens with kf instead of a remote JWKS.
func NewStaticValidator(cfg *config.Config, kf jwt.Keyfunc, log zerolog.Logger) *Validator {
	return &Validator{cfg: cfg, log: log, keyfunc: kf}
}

func (v *Validator) enabled() bool {
	return v != nil && v.cfg.AuthEnabled
}

// Middleware stores the caller's user id on the context, or rejects the
// request with 401.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.enabled() {
			userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
			if userID == "" {
				abortUnauthorized(c)
				return
			}
			c.Set(ctxUserID, userID)
			c.Next()
			return
		}

		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			abortUnauthorized(c)
			return
		}

		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithIssuer(v.cfg.AuthIssuer),
		}
		if aud := strings.TrimSpace(v.cfg.AuthAudience); aud != "" {
			opts = append(opts, jwt.WithAudience(aud))
		}
		token, err := jwt.Parse(tokenString, v.keyfunc, opts...)
		if err != nil || !token.Valid {
			v.log.Debug().Err(err).Msg("token rejected")
			abortUnauthorized(c)
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			abortUnauthorized(c)
			return
		}
		c.Set(ctxUserID, subject)
		c.Next()
	}
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	if !v.enabled() {
		return true
	}
	return v.keyfunc != nil
}

// Close stops the background JWKS refresh.
func (v *Validator) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}
