package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isaacparker671/rentago-demo/internal/api/middleware"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// getViewerID extracts the authenticated user's ID from the Gin context.
// Aborts with 401 when missing or malformed, which only happens if the
// route was registered without AuthMiddleware.
func getViewerID(c *gin.Context) (utils.SixID, bool) {
	raw, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	idStr, ok := raw.(string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	viewerID, err := utils.ParseSixID(idStr)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
		return utils.SixID{}, false
	}
	return viewerID, true
}

// parseIDParam parses a path parameter as a SixID.
func parseIDParam(c *gin.Context, name string) (utils.SixID, error) {
	return utils.ParseSixID(c.Param(name))
}
