package http

import (
	"errors"
	stdhttp "net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

const (
	cacheForever = "public, max-age=31536000"
	cacheNever   = "public, max-age=0, no-cache, no-store"
	allowJSON    = "POST (application/json)"
)

// ErrorResponse is the JSON envelope for every error status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteError writes status with the standard envelope.
func WriteError(c *fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:  statusTitle(status),
		Detail: detail,
	})
}

func statusTitle(status int) string {
	title := strconv.Itoa(status)

	switch status {
	case fiber.StatusNotFound:
		return title + " - Missing"
	default:
		if text := stdhttp.StatusText(status); text != "" {
			return title + " - " + text
		}

		return title
	}
}

// NotFound writes the standard 404 envelope.
func NotFound(c *fiber.Ctx) error {
	return WriteError(c, fiber.StatusNotFound, "The item you're looking for doesn't exist")
}

// ErrorHandler renders errors escaping the handler chain. Fiber errors keep
// their status; everything else is a 500 whose details are shown only when
// debug is set.
func ErrorHandler(logger libLog.Logger, debug bool) fiber.ErrorHandler {
	logger = libLog.OrNop(logger)

	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			if fe.Code == fiber.StatusNotFound {
				return NotFound(c)
			}

			return WriteError(c, fe.Code, fe.Message)
		}

		libLog.SafeError(logger, c.UserContext(), "request failed", err, !debug)

		body := ErrorResponse{Error: statusTitle(fiber.StatusInternalServerError)}
		if debug {
			body.Message = err.Error()
		}

		c.Set(fiber.HeaderCacheControl, cacheNever)

		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}
}
