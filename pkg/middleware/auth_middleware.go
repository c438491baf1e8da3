package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/identity"
	"github.com/bavena95/mode-app/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Gin context keys for the verified identity and the resolved local user.
const (
	IdentityContextKey = "identity"
	UserContextKey     = "user"
)

// UserResolver maps a verified identity to an active local user.
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error)
}

// RequireIdentity verifies the bearer credential and stores the identity.
func RequireIdentity(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			log.Debug("RequireIdentity: missing or malformed Authorization header")
			utils.ResponseWithError(c, http.StatusUnauthorized, "Authorization header required", nil)
			c.Abort()
			return
		}

		ident, err := verifier.Verify(c.Request.Context(), credential)
		if err != nil {
			log.Debugf("RequireIdentity: credential rejected: %v", err)
			utils.ResponseWithAppError(c, err)
			c.Abort()
			return
		}

		c.Set(IdentityContextKey, ident)
		c.Next()
	}
}

// RequireUser resolves the local user for the stored identity. It must run
// after RequireIdentity.
func RequireUser(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := GetIdentityFromContext(c)
		if !ok {
			log.Error("RequireUser: no identity in context, is RequireIdentity applied?")
			utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: identity missing", nil)
			c.Abort()
			return
		}

		user, err := resolver.ResolveOrCreate(c.Request.Context(), ident)
		if err != nil {
			utils.ResponseWithAppError(c, err)
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		log.Debugf("RequireUser: request authenticated as user %s", user.ID.String())
		c.Next()
	}
}

func GetIdentityFromContext(c *gin.Context) (*identity.ExternalIdentity, bool) {
	v, exists := c.Get(IdentityContextKey)
	if !exists {
		return nil, false
	}
	ident, ok := v.(*identity.ExternalIdentity)
	return ident, ok
}

func GetUserFromContext(c *gin.Context) (*db.User, bool) {
	v, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*db.User)
	return user, ok
}

// Expected format: "Bearer <token>".
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
