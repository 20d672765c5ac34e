package middleware

import (
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS handles Cross-Origin Resource Sharing. Allowed origins are read from
// the CORS_ORIGINS environment variable (comma-separated). Falls back to
// http://localhost:3000 for development.
func CORS() gin.HandlerFunc {
	originsStr := os.Getenv("CORS_ORIGINS")
	if originsStr == "" {
		originsStr = "http://localhost:3000"
	}
	origins := make([]string, 0)
	for _, o := range strings.Split(originsStr, ",") {
		origins = append(origins, strings.TrimSpace(o))
	}

	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"Authorization", "Idempotency-Key", "X-Request-ID",
			"X-User-ID", "X-User-Type", "X-Tenant-ID",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
