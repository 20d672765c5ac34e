package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
)

// Identity headers. Authentication happens at the edge; the gateway forwards
// the verified identity in these headers.
const (
	UserIDHeader   = "X-User-ID"
	UserTypeHeader = "X-User-Type"
	TenantIDHeader = "X-Tenant-ID"

	userIDKey   = "user_id"
	userTypeKey = "user_type"
	tenantIDKey = "tenant_id"
)

// User types carried in the identity headers.
const (
	UserTypeRider  = "rider"
	UserTypeDriver = "driver"
)

// Identity parses the forwarded identity headers into the gin context.
// Missing headers are tolerated here; handlers that need identity use
// GetUserID / GetTenantID and fail with 401.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader(UserIDHeader)); err == nil {
			c.Set(userIDKey, id)
		}
		if id, err := uuid.Parse(c.GetHeader(TenantIDHeader)); err == nil {
			c.Set(tenantIDKey, id)
		}
		switch userType := c.GetHeader(UserTypeHeader); userType {
		case UserTypeRider, UserTypeDriver:
			c.Set(userTypeKey, userType)
		}
		c.Next()
	}
}

// RequireIdentity aborts with 401 when no verified user identity is present.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := GetUserID(c); err != nil {
			common.HandleError(c, common.NewUnauthorizedError("missing or invalid identity headers"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user ID from the gin context.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id, nil
		}
	}
	return uuid.Nil, common.ErrUnauthorized
}

// GetTenantID returns the tenant ID from the gin context.
func GetTenantID(c *gin.Context) (uuid.UUID, error) {
	if v, ok := c.Get(tenantIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id, nil
		}
	}
	return uuid.Nil, common.ErrUnauthorized
}

// GetUserType returns "rider" or "driver", or an empty string if absent.
func GetUserType(c *gin.Context) string {
	if v, ok := c.Get(userTypeKey); ok {
		if userType, ok := v.(string); ok {
			return userType
		}
	}
	return ""
}
