package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// newPublicEngine mounts h on a gin engine with no registered routes, so
// every method and path falls through to the router.
func newPublicEngine(h http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.Use(gin.Recovery())
	engine.NoRoute(gin.WrapH(h))
	return engine
}
