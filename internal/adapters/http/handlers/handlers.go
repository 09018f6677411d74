package handlers

import "github.com/gin-gonic/gin"

// ErrorResponder renders a failed request.
type ErrorResponder func(c *gin.Context, err error)

// HandlerFunc is a gin handler that reports failures by returning them.
type HandlerFunc func(c *gin.Context) error

// Wrap adapts fn to a gin.HandlerFunc, rendering any returned error with respond.
func Wrap(fn HandlerFunc, respond ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c); err != nil {
			respond(c, err)
		}
	}
}
