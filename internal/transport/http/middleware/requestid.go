package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/requestid"
)

// RequestID makes sure every request carries a correlation ID: an inbound
// X-Request-ID header is trusted and kept, otherwise one is minted. The ID
// lands in the request context and is echoed back in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestid.Header)
		if id == "" {
			id = requestid.New()
		}

		c.Request = c.Request.WithContext(requestid.Into(c.Request.Context(), id))
		c.Header(requestid.Header, id)
		c.Next()
	}
}
