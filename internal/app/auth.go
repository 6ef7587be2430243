package app

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"booking-service/internal/config"
)

// AdminAuth accepts a bearer token that is either an HS256 JWT signed with
// cfg.JWTSecret or one of cfg.StaticTokens. With neither configured every
// admin request is rejected.
func AdminAuth(cfg config.AdminConfig) gin.HandlerFunc {
	var staticTokens []string
	for _, t := range cfg.StaticTokens {
		if t = strings.TrimSpace(t); t != "" {
			staticTokens = append(staticTokens, t)
		}
	}
	jwtSecret := []byte(strings.TrimSpace(cfg.JWTSecret))

	deny := func(c *gin.Context, msg string) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Success: false, Error: "UNAUTHORIZED", Message: msg})
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			deny(c, "missing authorization")
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			deny(c, "invalid authorization format")
			return
		}
		tokenStr := parts[1]

		if len(jwtSecret) > 0 {
			_, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
				return jwtSecret, nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithLeeway(5*time.Second))
			if err == nil {
				c.Next()
				return
			}
		}

		for _, t := range staticTokens {
			if subtle.ConstantTimeCompare([]byte(tokenStr), []byte(t)) == 1 {
				c.Next()
				return
			}
		}

		deny(c, "invalid token")
	}
}
