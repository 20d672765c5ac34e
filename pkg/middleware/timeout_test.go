package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("answers slow handlers with a gateway timeout", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestTimeout(50 * time.Millisecond))
		router.GET("/slow", func(c *gin.Context) {
			time.Sleep(200 * time.Millisecond)
			c.JSON(http.StatusOK, gin.H{"message": "too late"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Contains(t, w.Body.String(), "request took too long to process")
	})

	t.Run("passes fast handlers through untouched", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestTimeout(time.Second))
		router.GET("/fast", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "done"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "done")
	})
}
