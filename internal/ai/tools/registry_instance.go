package tools

import (
	"gamemaster/internal/logger"
)

// NewDefaultRegistry returns a registry with every Game Master tool:
// roll-dice plus the player management tools backed by store.
//
// Tool names are the function names the assistant was created with, so they
// must not change without updating the assistant.
func NewDefaultRegistry(store UserStore) (*ToolRegistry, error) {
	registry := NewToolRegistry()

	defaultTools := []Tool{
		NewDiceTool(),
		NewAddUserTool(store),
		NewGetUsersTool(store),
		NewDeleteUserTool(store),
	}

	for _, tool := range defaultTools {
		if err := registry.RegisterTool(tool); err != nil {
			return nil, err
		}
	}

	logger.Successf("Initialized tool registry with %d default tools", len(defaultTools))
	return registry, nil
}
