package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RequestLoggerConfig struct {
	Enabled     bool
	SkipPaths   []string
	SkipMethods []string
	Logger      *logrus.Logger
}

// RequestLogger writes one structured audit line per handled request.
func RequestLogger(config RequestLoggerConfig) fiber.Handler {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	skipMethods := make(map[string]bool)
	for _, method := range config.SkipMethods {
		skipMethods[method] = true
	}

	return func(c *fiber.Ctx) error {
		if !config.Enabled || config.Logger == nil || skipPaths[c.Path()] || skipMethods[c.Method()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fiberErr, ok := err.(*fiber.Error); ok {
			status = fiberErr.Code
		}

		fields := logrus.Fields{
			"action":      actionFromMethod(c.Method()),
			"module":      moduleFromPath(c.Path()),
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if id := c.Params("id"); id != "" {
			fields["resource_id"] = id
		}
		if userID, ok := UserID(c); ok {
			fields["user_id"] = userID
		}

		entry := config.Logger.WithFields(fields)
		switch {
		case err != nil:
			entry.WithError(err).Error("request failed")
		case status >= fiber.StatusInternalServerError:
			entry.Error("request failed")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
		return err
	}
}

func actionFromMethod(method string) string {
	switch method {
	case fiber.MethodPost:
		return "create"
	case fiber.MethodPut, fiber.MethodPatch:
		return "update"
	case fiber.MethodDelete:
		return "delete"
	case fiber.MethodGet:
		return "view"
	default:
		return "other"
	}
}

// moduleFromPath picks the last meaningful segment: /api/v1/complaints/<id>/assign -> assign.
func moduleFromPath(path string) string {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" || seg == "api" || seg == "v1" {
			continue
		}
		if _, err := uuid.Parse(seg); err == nil {
			continue
		}
		return seg
	}
	return "unknown"
}
