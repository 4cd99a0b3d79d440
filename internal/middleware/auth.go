package middleware

import (
	"errors"
	"net/http"
	"strings"

	"janasamparka/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const principalKey = "principal"

// Claims are issued by the identity service; this service only verifies
// them.
type Claims struct {
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	Role         model.Role `json:"role"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates an HS256 bearer token and stores the caller's Principal on
// the context.
func Auth(secret string) gin.HandlerFunc {
	return authenticate(secret, false)
}

// StreamAuth is Auth that also accepts the token as a ?token= query
// parameter, since EventSource cannot set headers.
func StreamAuth(secret string) gin.HandlerFunc {
	return authenticate(secret, true)
}

func authenticate(secret string, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c, allowQuery)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		principal, err := ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); allowQuery && token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", errors.New("invalid authorization header format")
	}
	return tokenString, nil
}

// ParseToken verifies the signature and expiry and returns the caller.
func ParseToken(tokenString, secret string) (model.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return model.Principal{}, errors.New("invalid token")
	}

	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return model.Principal{}, errors.New("invalid claims")
	}

	return model.Principal{
		UserID:       claims.UserID,
		Name:         claims.Name,
		Role:         claims.Role,
		DepartmentID: claims.DepartmentID,
	}, nil
}

// GetPrincipal returns the caller set by Auth.
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

// RequireRole aborts with 403 unless the caller has one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}
