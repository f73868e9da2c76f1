package initialization

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"

	"gamemaster/internal"
	"gamemaster/internal/ai"
	"gamemaster/internal/ai/tools"
	"gamemaster/internal/config"
	"gamemaster/internal/logger"
	"gamemaster/internal/users"
)

// App holds every long-lived component, built once at startup.
type App struct {
	Config  *config.Config
	Client  *openai.Client
	Users   *users.Client
	Tools   *tools.ToolRegistry
	Persona ai.Persona
	Driver  *ai.Driver
	Roles   *ai.RoleManager
}

// ConfigPath returns path, falling back to $CONFIG_PATH and then the default.
func ConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return internal.DEFAULT_CONFIG_PATH
}

// LoadConfig reads .env (when present) and the configuration file.
func LoadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	path = ConfigPath(path)
	logger.Infof("Loading configuration from %s", path)
	return config.LoadConfig(path)
}

// Initialize wires the application. The assistant is resolved (or created)
// against the vendor, so ctx bounds that round trip.
func Initialize(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.Init(cfg.LogDir); err != nil {
		return nil, err
	}

	client, err := ai.NewClient(cfg.OpenAI, cfg.APITimeout())
	if err != nil {
		return nil, err
	}

	userClient := users.NewClient(cfg.Users.BaseURL, cfg.UsersTimeout())

	registry, err := tools.NewDefaultRegistry(userClient)
	if err != nil {
		return nil, err
	}

	persona := ai.DefaultPersona(cfg.Assistant, registry.AssistantTools())

	assistantID, err := ai.EnsureAssistant(ctx, client, cfg.Assistant.ID, persona)
	if err != nil {
		return nil, err
	}

	driver := ai.NewDriver(client, registry, ai.DriverOptions{
		AssistantID:  assistantID,
		PollInterval: cfg.PollInterval(),
		MaxPolls:     cfg.Run.MaxPolls,
	})

	return &App{
		Config:  cfg,
		Client:  client,
		Users:   userClient,
		Tools:   registry,
		Persona: persona,
		Driver:  driver,
		Roles:   ai.NewRoleManager(client, persona),
	}, nil
}
