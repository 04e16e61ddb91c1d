package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/moodysoft/cardstash/internal/auth"
	"github.com/moodysoft/cardstash/internal/policy"
)

const actorKey = "cardstash.actor"

// authRequired verifies the bearer token, provisions the profile row and
// resolves the acting principal's roles for the request.
func (s *Server) authRequired(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		info, err := verifier.Verify(token)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("token verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		ctx := auth.WithPrincipalInfo(c.Request.Context(), info)
		c.Request = c.Request.WithContext(ctx)

		principal, err := s.procs.EnsurePrincipal(ctx, info.Subject, info.Email, info.Name)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		actor, err := s.engine.ActorFor(ctx, principal.PrincipalID, principal.Email)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFrom retrieves the actor resolved by authRequired.
func actorFrom(c *gin.Context) *policy.Actor {
	return c.MustGet(actorKey).(*policy.Actor)
}
