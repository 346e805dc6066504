package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"shop-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims is the bearer token payload issued by the user service.
type Claims struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
	Name   string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies an HS256 bearer token and stores the caller as a models.Actor.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			reject(c, http.StatusUnauthorized, "missing_token", "Authorization token required")
			return
		}

		actor, err := ParseToken(secret, tokenString)
		if err != nil {
			reject(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRoles must run after AuthMiddleware.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			reject(c, http.StatusUnauthorized, "missing_token", "Authorization token required")
			return
		}
		if !actor.HasRole(roles...) {
			reject(c, http.StatusForbidden, "forbidden_role", "Insufficient role")
			return
		}
		c.Next()
	}
}

func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

func ParseToken(secret []byte, tokenString string) (models.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, err
	}
	if claims.UserID <= 0 {
		return models.Actor{}, errors.New("token has no user id")
	}

	role := claims.Role
	if role == "" {
		role = models.RoleUser
	}
	switch role {
	case models.RoleUser, models.RoleStaff, models.RoleAdmin:
	default:
		return models.Actor{}, errors.New("token has an unknown role")
	}
	return models.Actor{ID: claims.UserID, Role: role, Name: claims.Name}, nil
}

// IssueToken signs a token for actor. The user service owns login; this is used by
// tooling and tests.
func IssueToken(secret []byte, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: actor.ID,
		Role:   actor.Role,
		Name:   actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}

func reject(c *gin.Context, status int, reason, message string) {
	metrics.rejected(status, reason)
	code := "Unauthorized"
	if status == http.StatusForbidden {
		code = "Forbidden"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}
