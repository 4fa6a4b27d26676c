package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SubjectKey is where Auth stores the authenticated caller in the gin
// context.
const SubjectKey = "subject"

// Auth validates a Bearer JWT signed with HS256 and records its subject.
// The tick and job endpoints are operator surfaces; they are never
// exposed unauthenticated.
func Auth(jwtKey []byte) gin.HandlerFunc {
	keyFunc := func(*jwt.Token) (any, error) { return jwtKey, nil }

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			abortUnauthorized(c)
			return
		}

		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			abortUnauthorized(c)
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}
