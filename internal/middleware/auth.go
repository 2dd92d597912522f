package middleware

import (
  "fmt"
  "net/http"
  "os"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/golang-jwt/jwt/v5"

  "github.com/yungbote/macrolog-backend/internal/logger"
)

// AdminAuthMiddleware guards the admin read API with an HS256 bearer token.
type AdminAuthMiddleware struct {
  log    *logger.Logger
  secret []byte
}

func NewAdminAuthMiddleware(log *logger.Logger) *AdminAuthMiddleware {
  return &AdminAuthMiddleware{
    log:    log.With("Middleware", "AdminAuthMiddleware"),
    secret: []byte(strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET"))),
  }
}

func (am *AdminAuthMiddleware) RequireAdmin() gin.HandlerFunc {
  return func(c *gin.Context) {
    if len(am.secret) == 0 {
      c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin api disabled"})
      return
    }
    tokenString := extractBearerToken(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }

    token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
      if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
        return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
      }
      return am.secret, nil
    }, jwt.WithValidMethods([]string{"HS256"}))
    if err != nil || !token.Valid {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }

    claims, ok := token.Claims.(jwt.MapClaims)
    if !ok || claims["role"] != "admin" {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
      return
    }
    c.Next()
  }
}

func extractBearerToken(c *gin.Context) string {
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return authHeader[7:]
  }
  return ""
}
