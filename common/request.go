package common

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

// MaxUploadBody caps request bodies on upload routes: two files at the upload
// ceiling plus form fields.
const MaxUploadBody int64 = 5 << 20

const bodyTooLarge = "The request body is too large."

// LimitBody rejects request bodies larger than n bytes while they are read.
func LimitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// ParamID reads a positive numeric path parameter. Anything else is reported
// as notFound, the same as a missing row.
func ParamID(c *gin.Context, name, notFound string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, NotFound(notFound)
	}
	return uint(id), nil
}

// OptionalFile returns the uploaded file for field, or nil when the request
// carries none (including non multipart requests).
func OptionalFile(c *gin.Context, field string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err == nil {
		return fh, nil
	}
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if isTooLarge(err) {
		return nil, TooLarge(bodyTooLarge)
	}
	return nil, FieldError(field, "The "+humanize(field)+" failed to upload.")
}

// DecodedParam percent-decodes a path parameter exactly once. The engine
// keeps escaped values when the request carries a raw path; otherwise net/url
// has already decoded the path gin matched.
func DecodedParam(c *gin.Context, name string) (string, error) {
	value := c.Param(name)
	if c.Request.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}
