package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	obslogger "github.com/smallbiznis/referralhub/internal/observability/logger"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

// claims issued by the identity provider. Only HS256 tokens are accepted.
type claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthRequired verifies the bearer token and stores the caller in the request
// context for the services below.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.parseToken(raw)
		if err != nil {
			obslogger.FromContext(c.Request.Context()).Debug("rejected bearer token", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, actor.ID)
		ctx := actorcontext.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) parseToken(raw string) (actorcontext.Actor, error) {
	secret := strings.TrimSpace(s.cfg.Auth.JWTSecret)
	if secret == "" {
		return actorcontext.Actor{}, errors.New("jwt secret is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(s.cfg.Auth.JWTIssuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	var parsed claims
	if _, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...); err != nil {
		return actorcontext.Actor{}, err
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return actorcontext.Actor{}, errors.New("token subject is empty")
	}

	return actorcontext.Actor{
		ID:    subject,
		Role:  strings.ToLower(strings.TrimSpace(parsed.Role)),
		Email: strings.TrimSpace(parsed.Email),
	}, nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireRole rejects callers whose token role is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorcontext.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}
