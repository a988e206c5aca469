package middleware

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/usermanagement/usermanagement/internal/auth"
)

// ActorProvider identifies the user responsible for the current request
type ActorProvider interface {
	CurrentActorID(c *gin.Context) (uuid.UUID, bool)
}

// StaticActor attributes every request to one configured user. It stands in for
// authentication, which this service does not perform.
type StaticActor struct {
	ID uuid.UUID
}

func (s StaticActor) CurrentActorID(*gin.Context) (uuid.UUID, bool) {
	return s.ID, s.ID != uuid.Nil
}

// TokenActor takes the actor from the subject of an optional "Authorization: Bearer"
// token. Requests without a usable token are delegated to Fallback, if any.
type TokenActor struct {
	Tokens   *auth.Tokens
	Fallback ActorProvider
}

func (t TokenActor) CurrentActorID(c *gin.Context) (uuid.UUID, bool) {
	if raw, ok := bearerToken(c); ok && t.Tokens != nil {
		claims, err := t.Tokens.Validate(raw)
		if err == nil {
			if id, err := uuid.Parse(claims.Subject); err == nil && id != uuid.Nil {
				return id, true
			}
			slog.Debug("bearer token subject is not a user id", "sub", claims.Subject)
		} else {
			slog.Debug("ignoring invalid bearer token", "error", err)
		}
	}
	if t.Fallback != nil {
		return t.Fallback.CurrentActorID(c)
	}
	return uuid.Nil, false
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
