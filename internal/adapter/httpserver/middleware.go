package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gbilton/elections-2022/internal/platform/correlation"
	apperrors "github.com/gbilton/elections-2022/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const correlationHeader = "X-Correlation-ID"

// correlationMiddleware reuses a caller-supplied correlation ID or starts a
// new one, and echoes it back in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				structured, ok := WrapHTTPError(httpErr)
				if !ok {
					return err
				}
				err = structured
			}

			return HandleError(c, err)
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Fields {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Dependency unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// HandleError writes err as a structured JSON error response.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func HandleValidationError(c echo.Context, message string) error {
	return HandleError(c, apperrors.ValidationError(message))
}

func HandleNotFoundError(c echo.Context, message string) error {
	return HandleError(c, apperrors.NotFoundError(message))
}

// WrapHTTPError converts an echo error into a structured one. Codes without
// a structured counterpart are left to echo's default handler.
func WrapHTTPError(httpErr *echo.HTTPError) (*apperrors.Error, bool) {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	switch httpErr.Code {
	case http.StatusBadRequest:
		return apperrors.ValidationError(message), true
	case http.StatusNotFound:
		return apperrors.NotFoundError(message), true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return apperrors.UnavailableError(message, httpErr.Internal), true
	default:
		return nil, false
	}
}
