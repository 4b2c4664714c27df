package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"muster/api/internal/models"
)

const identityKey = "identity"

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (models.Identity, bool, error)
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Authenticate attaches the identity behind a bearer token to the request.
// Requests without a usable token pass through unauthenticated; only a
// failing credential store aborts the request.
func Authenticate(authn Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		identity, ok, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("authenticate failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if ok {
			c.Set(identityKey, identity)
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity attached by Authenticate.
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}
