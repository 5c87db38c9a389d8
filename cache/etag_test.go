package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(payload *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/explore", ETag(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": *payload})
	})
	router.GET("/missing", ETag(), func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "nope"})
	})
	router.POST("/explore", ETag(), func(c *gin.Context) {
		c.String(http.StatusOK, "posted")
	})
	return router
}

func get(router *gin.Engine, method, path, ifNoneMatch string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestETag_RoundTrip(t *testing.T) {
	payload := "blogs"
	router := setupTestRouter(&payload)

	first := get(router, "GET", "/explore", "")
	require.Equal(t, http.StatusOK, first.Code)
	tag := first.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Regexp(t, `^W/"[0-9a-f]{16}"$`, tag)
	assert.JSONEq(t, `{"data":"blogs"}`, first.Body.String())

	second := get(router, "GET", "/explore", tag)
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())
	assert.Equal(t, tag, second.Header().Get("ETag"))

	payload = "more blogs"
	third := get(router, "GET", "/explore", tag)
	assert.Equal(t, http.StatusOK, third.Code)
	assert.NotEqual(t, tag, third.Header().Get("ETag"))
	assert.JSONEq(t, `{"data":"more blogs"}`, third.Body.String())
}

func TestETag_StableForSameBody(t *testing.T) {
	payload := "same"
	router := setupTestRouter(&payload)

	a := get(router, "GET", "/explore", "")
	b := get(router, "GET", "/explore", "")
	assert.Equal(t, a.Header().Get("ETag"), b.Header().Get("ETag"))
}

func TestETag_ListAndWildcard(t *testing.T) {
	payload := "x"
	router := setupTestRouter(&payload)
	tag := get(router, "GET", "/explore", "").Header().Get("ETag")

	assert.Equal(t, http.StatusNotModified, get(router, "GET", "/explore", `"other", `+tag).Code)
	assert.Equal(t, http.StatusNotModified, get(router, "GET", "/explore", "*").Code)
	assert.Equal(t, http.StatusOK, get(router, "GET", "/explore", `"other"`).Code)
}

func TestETag_SkipsErrorsAndWrites(t *testing.T) {
	payload := "x"
	router := setupTestRouter(&payload)

	missing := get(router, "GET", "/missing", "*")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Empty(t, missing.Header().Get("ETag"))
	assert.JSONEq(t, `{"message":"nope"}`, missing.Body.String())

	posted := get(router, "POST", "/explore", "")
	assert.Equal(t, http.StatusOK, posted.Code)
	assert.Empty(t, posted.Header().Get("ETag"))
	assert.Equal(t, "posted", posted.Body.String())
}
