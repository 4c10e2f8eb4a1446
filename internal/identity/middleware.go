package identity

import (
	"net/http"

	"github.com/abduss/inkledger/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const sourceAppContextKey contextKey = "inkledgerSourceApp"

// AppKeyMiddleware authenticates calling applications. Every request names
// its app via X-App-Name and proves it with X-API-Key; keys are configured
// as bcrypt hashes so a leaked config file does not leak the keys.
func AppKeyMiddleware(cfg config.AppKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		appName := c.GetHeader("X-App-Name")
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if appName == "" || apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing app credentials"})
			return
		}

		hash, ok := cfg.Keys[appName]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown application"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Set(string(sourceAppContextKey), appName)
		c.Next()
	}
}

// SourceApp returns the authenticated calling application for the request.
func SourceApp(c *gin.Context) (string, bool) {
	value, exists := c.Get(string(sourceAppContextKey))
	if !exists {
		return "", false
	}
	app, ok := value.(string)
	return app, ok && app != ""
}
