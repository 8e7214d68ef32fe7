package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
)

// writeError maps an application error onto the HTTP surface. Internal
// failures are reported without detail; everything in the taxonomy carries
// its message through so the caller knows what was expected vs found.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": apperr.Code(err), "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": apperr.Code(err), "message": err.Error()})
}
