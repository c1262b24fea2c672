package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
)

// ContextKeyClaims is the Gin context key holding the validated JWT claims.
const ContextKeyClaims = "claims"

// tokenSource extracts the raw token string from the request.
type tokenSource func(c *gin.Context) string

func bearerHeader(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return token
}

// queryToken reads ?token=... — the only channel available to WebSocket
// upgrade requests, which cannot carry an Authorization header.
func queryToken(c *gin.Context) string {
	return c.Query("token")
}

// requireToken builds a middleware that validates a JWT from the given
// source and rejects tokens of the wrong type.
func requireToken(authService *service.AuthService, source tokenSource, wantType string, wrongTypeCode response.ErrCode) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := source(c)
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if claims.TokenType != wantType {
			response.AbortFail(c, http.StatusForbidden, wrongTypeCode)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireStudentJWT admits only exam-scoped student tokens.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireToken(authService, bearerHeader, service.TokenTypeStudent, response.ErrStudentAccessOnly)
}

// RequireGuruJWT admits only guru tokens.
func RequireGuruJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireToken(authService, bearerHeader, service.TokenTypeGuru, response.ErrGuruAccessOnly)
}

// RequireGuruWSAuth admits guru tokens passed as a query parameter on
// WebSocket upgrade requests.
func RequireGuruWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return requireToken(authService, queryToken, service.TokenTypeGuru, response.ErrGuruAccessOnly)
}

// GetClaims returns the claims stored by the JWT middlewares, or nil when
// the request was not authenticated.
func GetClaims(c *gin.Context) *service.Claims {
	val, ok := c.Get(ContextKeyClaims)
	if !ok {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}
