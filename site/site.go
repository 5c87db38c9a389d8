package site

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"blogroll/blog"
	"blogroll/cache"
	"blogroll/common"
	"blogroll/storage"
)

// SiteModule serves the public surface: the explore listing and stored media.
type SiteModule struct {
	blogs *blog.BlogModule
	store storage.Storage
	log   zerolog.Logger
}

func NewSiteModule(blogs *blog.BlogModule, store storage.Storage, logger zerolog.Logger) *SiteModule {
	return &SiteModule{blogs: blogs, store: store, log: logger}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine, api *gin.RouterGroup) {
	api.GET("/explore", cache.ETag(), s.explore)
	router.GET("/storage/*key", s.media)
}

func (s *SiteModule) explore(c *gin.Context) {
	blogs, err := s.blogs.List(c.Request.Context())
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, blogs, "Blogs retrieved successfully.")
}

// media streams an uploaded file. Only keys under the upload root are served.
func (s *SiteModule) media(c *gin.Context) {
	notFound := common.NotFound("File not found.")

	key, err := common.DecodedParam(c, "key")
	if err != nil {
		common.SendError(c, notFound)
		return
	}
	key = strings.TrimPrefix(key, "/")
	if path.Clean(key) != key || !strings.HasPrefix(key, storage.UploadRoot+"/") {
		common.SendError(c, notFound)
		return
	}

	rc, err := s.store.Open(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		common.SendError(c, notFound)
		return
	}
	if err != nil {
		common.SendError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "public, max-age=86400",
	})
}
