package http

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-Id"

// ErrNonJSONOutput is raised when a handler writes a body that is not JSON.
var ErrNonJSONOutput = errors.New("http: server tried to output something other than application/json")

// WithRequestLogging tags each request with an id and logs its outcome.
func WithRequestLogging(logger libLog.Logger) fiber.Handler {
	logger = libLog.OrNop(logger)

	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDHeader, requestID)

		start := time.Now()
		err := c.Next()

		fields := []libLog.Field{
			libLog.String("request_id", requestID),
			libLog.String("method", c.Method()),
			libLog.String("path", c.Path()),
			libLog.Int("status", c.Response().StatusCode()),
			libLog.Duration("duration", time.Since(start)),
		}

		if err != nil {
			fields = append(fields, libLog.Err(err))
		}

		logger.Log(c.UserContext(), libLog.LevelDebug, "request handled", fields...)

		return err
	}
}

// NotCached marks responses uncacheable unless a handler says otherwise.
func NotCached(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, cacheNever)

	return c.Next()
}

// OnlyJSONOutput rejects handlers that write non-JSON bodies and labels empty
// bodies as JSON.
func OnlyJSONOutput(c *fiber.Ctx) error {
	if err := c.Next(); err != nil {
		return err
	}

	if len(c.Response().Body()) == 0 {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		return nil
	}

	contentType := string(c.Response().Header.ContentType())
	if !isJSONMediaType(contentType) {
		return fmt.Errorf("%w: status %d type %q path %s",
			ErrNonJSONOutput, c.Response().StatusCode(), contentType, c.Path())
	}

	return nil
}

// OnlyHTTPS refuses requests a TLS-terminating proxy did not mark as https.
func OnlyHTTPS(c *fiber.Ctx) error {
	if !strings.EqualFold(strings.TrimSpace(c.Get(fiber.HeaderXForwardedProto)), "https") {
		return WriteError(c, fiber.StatusForbidden, "HTTPS must be used with this API.")
	}

	return c.Next()
}

func isJSONMediaType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)

	return err == nil && mediaType == fiber.MIMEApplicationJSON
}
