// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/intragate/internal/templates"
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component with the given status code. The component
// is rendered into a pooled buffer first so a failed render never produces a
// half-written page.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(c.Request().Context(), buf); err != nil {
		return err
	}

	return c.HTMLBlob(statusCode, buf.Bytes())
}

// NotFound renders the 404 error page.
func NotFound(c echo.Context) error {
	return Render(c, http.StatusNotFound, templates.NotFound())
}

// ErrorHandler renders the 404 page for unknown routes and falls back to
// echo's default handler for everything else.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusNotFound {
			if renderErr := NotFound(c); renderErr != nil {
				slog.Error("failed to render not found page", "error", renderErr)
			}
			return
		}

		e.DefaultHTTPErrorHandler(err, c)
	}
}
