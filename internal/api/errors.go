package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sashabaranov/go-openai"

	"gamemaster/internal/ai"
	"gamemaster/internal/ai/tools"
)

type errorResponse struct {
	Error string `json:"error"`
}

type runErrorResponse struct {
	Error     string           `json:"error"`
	ThreadID  string           `json:"thread_id,omitempty"`
	RunID     string           `json:"run_id,omitempty"`
	Status    openai.RunStatus `json:"status"`
	LastError *runLastError    `json:"last_error,omitempty"`
}

type runLastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// vendorFailure answers a failed pass-through call with 404 and the vendor's
// own error payload.
func vendorFailure(c echo.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(http.StatusNotFound, apiErr)
	}
	return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// runFailure maps a failed conversation turn to a status code.
func runFailure(c echo.Context, err error) error {
	var (
		runErr   *ai.RunError
		apiErr   *openai.APIError
		argsErr  *tools.InvalidArgumentsError
		notFound = errors.Is(err, tools.ErrToolNotFound)
	)

	switch {
	case errors.As(err, &runErr):
		resp := runErrorResponse{
			Error:    err.Error(),
			ThreadID: runErr.ThreadID,
			RunID:    runErr.RunID,
			Status:   runErr.Status,
		}
		if runErr.Code != "" || runErr.Message != "" {
			resp.LastError = &runLastError{Code: runErr.Code, Message: runErr.Message}
		}
		return c.JSON(http.StatusBadGateway, resp)

	case errors.Is(err, ai.ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})

	case notFound, errors.As(err, &argsErr):
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})

	case errors.Is(err, ai.ErrNoAssistant):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})

	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusNotFound {
			return c.JSON(http.StatusNotFound, apiErr)
		}
		return c.JSON(http.StatusBadGateway, apiErr)
	}

	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
