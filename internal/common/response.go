package common

import (
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var exposeErrors atomic.Bool

// ExposeErrors toggles whether Fail includes the underlying error text.
// Only development deployments turn it on.
func ExposeErrors(on bool) { exposeErrors.Store(on) }

// OK writes a success envelope. Extra fields are merged at the top level.
func OK(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Fail writes the error envelope {success:false, message, error?} and aborts.
func Fail(c *gin.Context, status int, message string, cause error, fields ...gin.H) {
	body := gin.H{"success": false, "message": message}
	if cause != nil && exposeErrors.Load() {
		body["error"] = cause.Error()
	}
	for _, f := range fields {
		for k, v := range f {
			body[k] = v
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// FailErr maps err through StatusFor/MessageFor.
func FailErr(c *gin.Context, err error, fields ...gin.H) {
	Fail(c, StatusFor(err), MessageFor(err), err, fields...)
}
