package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"gamemaster/internal"
	"gamemaster/internal/ai"
	"gamemaster/internal/logger"
	"gamemaster/internal/security"
)

const shutdownTimeout = 10 * time.Second

// Conversations runs user messages through the assistant. *ai.Driver satisfies it.
type Conversations interface {
	Ask(ctx context.Context, msg string) (ai.Reply, error)
	Continue(ctx context.Context, threadID, msg string) (ai.Reply, error)
	Messages(ctx context.Context, threadID string, limit int) ([]ai.ThreadMessage, error)
}

// Roles manages campaigns. *ai.RoleManager satisfies it.
type Roles interface {
	CreateRole(ctx context.Context, opts ai.RoleOptions) (ai.Role, error)
	GetRole(ctx context.Context, threadID string) (ai.Role, error)
	UpdateRole(ctx context.Context, threadID string, opts ai.RoleOptions) (ai.Role, error)
	DeleteRole(ctx context.Context, threadID string) error
}

type Options struct {
	Address string
	// TokenHash is an argon2id hash; when set every /api route needs a
	// matching bearer token.
	TokenHash string
}

type Server struct {
	echo    *echo.Echo
	address string

	conv    Conversations
	vendor  ai.AssistantsAPI
	roles   Roles
	persona ai.Persona
}

func New(conv Conversations, vendor ai.AssistantsAPI, roles Roles, persona ai.Persona, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		address: opts.Address,
		conv:    conv,
		vendor:  vendor,
		roles:   roles,
		persona: persona,
	}

	e.Use(AccessLog())

	e.GET("/healthz", s.Health)

	g := e.Group("/api")
	if opts.TokenHash != "" {
		g.Use(BearerAuth(security.NewTokenVerifier(opts.TokenHash)))
	}

	g.POST("/IA", s.Ask)

	g.POST("/assistant", s.CreateAssistant)
	g.GET("/assistant/:id", s.GetAssistant)
	g.PUT("/assistant/:id", s.UpdateAssistant)
	g.DELETE("/assistant/:id", s.DeleteAssistant)

	g.POST("/thread", s.CreateThread)
	g.GET("/thread/:id", s.GetThread)
	g.PUT("/thread/:id", s.UpdateThread)
	g.DELETE("/thread/:id", s.DeleteThread)
	g.GET("/thread/:id/messages", s.ListMessages)
	g.POST("/thread/:id/messages", s.SendMessage)

	g.POST("/role", s.CreateRole)
	g.GET("/role/:id", s.GetRole)
	g.PUT("/role/:id", s.UpdateRole)
	g.DELETE("/role/:id", s.DeleteRole)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API listening on %s", s.address)
		errCh <- s.echo.Start(s.address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infof("Shutting down HTTP API")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": internal.APP_VERSION,
	})
}

// AccessLog logs every request through the application logger.
func AccessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			n := res.Status
			switch {
			case n >= 500:
				logger.Errorf("%s %s -> %d (%s) %v", req.Method, req.RequestURI, n, time.Since(start), err)
			case n >= 400:
				logger.Warnf("%s %s -> %d (%s)", req.Method, req.RequestURI, n, time.Since(start))
			default:
				logger.Infof("%s %s -> %d (%s)", req.Method, req.RequestURI, n, time.Since(start))
			}
			return nil
		}
	}
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token.
func BearerAuth(v *security.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || !v.Verify(strings.TrimSpace(token)) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid bearer token")
			}
			return next(c)
		}
	}
}
