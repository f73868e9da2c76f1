package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sashabaranov/go-openai"

	"gamemaster/internal/ai"
)

type messageRequest struct {
	Msg string `json:"msg"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type messagesResponse struct {
	Messages []ai.ThreadMessage `json:"messages"`
}

func bindMessage(c echo.Context) (string, error) {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return "", errors.New("invalid request body")
	}
	msg := strings.TrimSpace(req.Msg)
	if msg == "" {
		return "", errors.New("msg is required")
	}
	return msg, nil
}

// Ask starts a new conversation: POST /api/IA {"msg": "..."}
func (s *Server) Ask(c echo.Context) error {
	msg, err := bindMessage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	reply, err := s.conv.Ask(c.Request().Context(), msg)
	if err != nil {
		return runFailure(c, err)
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: reply.Message, ID: reply.ThreadID})
}

func (s *Server) SendMessage(c echo.Context) error {
	msg, err := bindMessage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	reply, err := s.conv.Continue(c.Request().Context(), c.Param("id"), msg)
	if err != nil {
		return runFailure(c, err)
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: reply.Message, ID: reply.ThreadID})
}

func (s *Server) ListMessages(c echo.Context) error {
	limit := 0
	if q := c.QueryParam("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}

	msgs, err := s.conv.Messages(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, messagesResponse{Messages: msgs})
}

// assistantBody decodes the tools too: openai.AssistantRequest only
// marshals them.
type assistantBody struct {
	openai.AssistantRequest
	Tools []openai.AssistantTool `json:"tools"`
}

// bindAssistant decodes the request body over req. Tools in the body replace
// req.Tools; absent tools leave them as they are.
func bindAssistant(c echo.Context, req *openai.AssistantRequest) error {
	body := assistantBody{AssistantRequest: *req}
	if err := c.Bind(&body); err != nil {
		return err
	}
	*req = body.AssistantRequest
	if body.Tools != nil {
		req.Tools = body.Tools
	}
	return nil
}

// CreateAssistant creates an assistant from the Game Master persona. Fields
// present in the body override the persona.
func (s *Server) CreateAssistant(c echo.Context) error {
	req := s.persona.Request("")
	if err := bindAssistant(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}

	assistant, err := s.vendor.CreateAssistant(c.Request().Context(), req)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusCreated, assistant)
}

func (s *Server) GetAssistant(c echo.Context) error {
	assistant, err := s.vendor.RetrieveAssistant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, assistant)
}

// UpdateAssistant modifies an assistant. The vendor requires a model on every
// modify call, so a body without one keeps the current model.
func (s *Server) UpdateAssistant(c echo.Context) error {
	var req openai.AssistantRequest
	if err := bindAssistant(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	if req.Model == "" {
		current, err := s.vendor.RetrieveAssistant(ctx, c.Param("id"))
		if err != nil {
			return vendorFailure(c, err)
		}
		req.Model = current.Model
	}

	assistant, err := s.vendor.ModifyAssistant(ctx, c.Param("id"), req)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, assistant)
}

func (s *Server) DeleteAssistant(c echo.Context) error {
	resp, err := s.vendor.DeleteAssistant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateThread(c echo.Context) error {
	var req openai.ThreadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	thread, err := s.vendor.CreateThread(c.Request().Context(), req)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusCreated, thread)
}

func (s *Server) GetThread(c echo.Context) error {
	thread, err := s.vendor.RetrieveThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, thread)
}

func (s *Server) UpdateThread(c echo.Context) error {
	var req openai.ModifyThreadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	thread, err := s.vendor.ModifyThread(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, thread)
}

func (s *Server) DeleteThread(c echo.Context) error {
	resp, err := s.vendor.DeleteThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateRole(c echo.Context) error {
	var opts ai.RoleOptions
	if err := c.Bind(&opts); err != nil {
		return badRequest(c, "invalid request body")
	}

	role, err := s.roles.CreateRole(c.Request().Context(), opts)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusCreated, role)
}

func (s *Server) GetRole(c echo.Context) error {
	role, err := s.roles.GetRole(c.Request().Context(), c.Param("id"))
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, role)
}

func (s *Server) UpdateRole(c echo.Context) error {
	var opts ai.RoleOptions
	if err := c.Bind(&opts); err != nil {
		return badRequest(c, "invalid request body")
	}

	role, err := s.roles.UpdateRole(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return vendorFailure(c, err)
	}
	return c.JSON(http.StatusOK, role)
}

func (s *Server) DeleteRole(c echo.Context) error {
	if err := s.roles.DeleteRole(c.Request().Context(), c.Param("id")); err != nil {
		return vendorFailure(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
