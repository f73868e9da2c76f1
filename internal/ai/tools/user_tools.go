package tools

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"

	"gamemaster/internal/users"
)

// UserStore is the subset of the user service the tools need.
type UserStore interface {
	List(ctx context.Context) ([]users.User, error)
	Add(ctx context.Context, user any) (users.User, error)
	Delete(ctx context.Context, id string) (users.User, error)
}

type AddUserArgs struct {
	Name string `json:"name"`
}

type DeleteUserArgs struct {
	ID string `json:"id"`
}

// UserTool exposes one user-service operation, picked by the tool name.
type UserTool struct {
	BaseTool
	store UserStore
}

func NewAddUserTool(store UserStore) *UserTool {
	return &UserTool{
		BaseTool: BaseTool{
			ToolName:        "add_user",
			ToolDescription: "Register a new player by name",
			ToolParameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name": {
						Type:        jsonschema.String,
						Description: "The player's name",
					},
				},
				Required: []string{"name"},
			},
		},
		store: store,
	}
}

func NewGetUsersTool(store UserStore) *UserTool {
	return &UserTool{
		BaseTool: BaseTool{
			ToolName:        "get_users",
			ToolDescription: "List every registered player",
			ToolParameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: map[string]jsonschema.Definition{},
			},
		},
		store: store,
	}
}

func NewDeleteUserTool(store UserStore) *UserTool {
	return &UserTool{
		BaseTool: BaseTool{
			ToolName:        "delete_user",
			ToolDescription: "Remove a registered player by id",
			ToolParameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"id": {
						Type:        jsonschema.String,
						Description: "The id of the player to remove",
					},
				},
				Required: []string{"id"},
			},
		},
		store: store,
	}
}

func (t *UserTool) Execute(ctx context.Context, args string) (any, error) {
	switch t.Name() {
	case "add_user":
		var params AddUserArgs
		if err := decodeArgs(t.Name(), args, &params); err != nil {
			return nil, err
		}
		return t.store.Add(ctx, params)

	case "get_users":
		return t.store.List(ctx)

	case "delete_user":
		var params DeleteUserArgs
		if err := decodeArgs(t.Name(), args, &params); err != nil {
			return nil, err
		}
		return t.store.Delete(ctx, params.ID)
	}

	return nil, &ToolNotFoundError{Name: t.Name()}
}
