package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"chainarena/internal/core"
)

const maxRequestIDLength = 128

// RequestID propagates the caller's X-Request-ID, or a fresh UUID, into the
// request context and the response headers.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}
