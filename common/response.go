package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

var emptyData = []interface{}{}

// SendResponse writes a success envelope. nil data is rendered as [].
func SendResponse(c *gin.Context, status int, data interface{}, message string) {
	if data == nil {
		data = emptyData
	}
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// SendError writes a failure envelope for err and aborts the chain.
// Errors that are not *Error are reported as 500 and logged.
func SendError(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}

	if e.Kind == KindInternal {
		logger := zerolog.Ctx(c.Request.Context())
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}

	var data interface{} = emptyData
	if len(e.Fields) > 0 {
		data = e.Fields
	}

	c.AbortWithStatusJSON(e.Kind.Status(), envelope{Success: false, Message: e.Message, Data: data})
}

// SendStatus writes a failure envelope with an explicit status, for
// conditions outside the domain taxonomy such as rate limiting.
func SendStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Data: emptyData})
}

// WithLogger attaches logger to every request context so SendError can reach it.
func WithLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the envelope.
func NotFoundHandler(c *gin.Context) {
	SendStatus(c, http.StatusNotFound, "Not Found.")
}
