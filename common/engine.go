package common

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// MaxMultipartMemory bounds in-memory multipart parsing; larger parts spill to disk.
const MaxMultipartMemory = 8 << 20

// NewEngine returns a gin engine with the API's shared middleware. Path
// values are left escaped so handlers that accept file names decode them once.
func NewEngine(logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.UnescapePathValues = false
	router.MaxMultipartMemory = MaxMultipartMemory

	router.Use(gin.Recovery(), WithLogger(logger), RequestLogger(logger))
	router.NoRoute(NotFoundHandler)
	return router
}
