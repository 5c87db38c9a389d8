package cache

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the body back so the middleware can answer 304
// instead of sending it.
type bufferedWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// ETag tags successful GET responses with a weak validator derived from the
// body and answers a matching If-None-Match with 304 Not Modified.
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}

		original := c.Writer
		writer := &bufferedWriter{ResponseWriter: original, body: bytes.NewBuffer(nil)}
		c.Writer = writer
		c.Next()
		c.Writer = original

		if original.Status() != http.StatusOK {
			original.Write(writer.body.Bytes())
			return
		}

		tag := fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(writer.body.Bytes()))
		original.Header().Set("ETag", tag)

		if matches(c.GetHeader("If-None-Match"), tag) {
			original.Header().Del("Content-Type")
			original.Header().Del("Content-Length")
			original.WriteHeader(http.StatusNotModified)
			original.WriteHeaderNow()
			return
		}
		original.Write(writer.body.Bytes())
	}
}

// matches applies the weak comparison of If-None-Match.
func matches(header, tag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}
