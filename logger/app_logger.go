package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const RequestIdHeader = "X-Request-Id"

// Logger is the access log of the control server.
// Requests addressing a running test carry its id as the testId field.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := eventForStatus(status)
		if requestId := c.GetHeader(RequestIdHeader); requestId != "" {
			event = event.Str("requestId", requestId)
		}
		if testId := c.Param("id"); testId != "" {
			event = event.Str("testId", testId)
		}
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}
		message := c.Errors.String()
		if message == "" {
			message = "Control request"
		}
		event.Str("method", c.Request.Method).Str("path", path).
			Int("status", status).Int("size", c.Writer.Size()).
			Dur("resp_time", time.Since(started)).Str("client_ip", c.ClientIP()).
			Msg(message)
	}
}

func eventForStatus(status int) *zerolog.Event {
	switch {
	case status >= 500:
		return log.Error()
	case status >= 400:
		return log.Warn()
	}
	return log.Info()
}
