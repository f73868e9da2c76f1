package ai

import (
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"gamemaster/internal/config"
	"gamemaster/internal/logger"
)

var ErrMissingAPIKey = errors.New("OpenAI API key not found")

// NewClient builds the vendor client from configuration. The client is
// handed to whoever needs it; there is no package-level instance.
func NewClient(cfg config.OpenAIConfig, timeout time.Duration) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.OrgID = cfg.Organization
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	logger.Successf("OpenAI client initialized (base URL %s)", clientConfig.BaseURL)
	return openai.NewClientWithConfig(clientConfig), nil
}
