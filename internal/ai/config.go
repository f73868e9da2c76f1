package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"gamemaster/internal/config"
	"gamemaster/internal/logger"
)

// Persona is what an assistant is created from.
type Persona struct {
	Name         string
	Model        string
	Instructions string
	Tools        []openai.AssistantTool
}

const defaultInstructions = `Your role is to be the Game Master for a role-playing game set in the user's provided scenario.
Your task is to procedurally create the role-playing campaign.

If, for any reason, the user does not provide a character and a world, inform them and request both.
Do not accept user requests until you have everything needed to start the game.

If no rules for the game are provided, stay neutral and follow the mechanics of Dungeons and Dragons.
If no context about the world is provided, offer to create it together with the player.

As a Game Master, you:
- Build a compelling narrative from the players' actions and the results of their dice rolls.
- Know the rules of the game perfectly.
- Design the adventures: plots, challenges and encounters.
- Encourage interaction with NPCs and manage conflicts and important decisions.
- Improvise and adjust the story when players do something unexpected.
- Balance action, exploration and narration.
- Make sure everyone has fun, adapting to the players' style.
- Narrate in the language of the user's latest message.

A character looks like this:
{
  name: String,
  class: String,
  level: Number,
  xp: Number,
  xpToLevel: Number,
  maxhp: Number,
  hp: Number,
  description: String,
  background: String
}

The narrative style follows the description of the world the user provides.

For skill checks and attack rolls, consult the rules, set the difficulty from the character's skills and
modifiers, and always use the roll-dice function instead of inventing results.

Every action, however small, follows the rules of the game.
Keep continuity: remember past events, player choices and character backgrounds.
Ask the players for their decisions so they stay involved in the story.

For the first move, ask the user what they want to do; by default place their character in a random
situation. Be brief here.

RESTRICTIONS:
- The user cannot cheat, for example by changing a dice result or altering life, level or other
  attributes of their character after creation.
- Do not role-play with users directly or express individuality. You are an omniscient narrator and
  only speak as non-player characters.`

// DefaultPersona returns the Game Master persona with the configured
// overrides applied.
func DefaultPersona(cfg config.AssistantConfig, tools []openai.AssistantTool) Persona {
	p := Persona{
		Name:         cfg.Name,
		Model:        cfg.Model,
		Instructions: cfg.Instructions,
		Tools:        tools,
	}
	if p.Instructions == "" {
		p.Instructions = defaultInstructions
	}
	return p
}

// Request renders the persona as an assistant create/update request.
func (p Persona) Request(name string) openai.AssistantRequest {
	if name == "" {
		name = p.Name
	}
	instructions := p.Instructions
	return openai.AssistantRequest{
		Model:        p.Model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        p.Tools,
	}
}

// EnsureAssistant resolves the assistant the driver runs against: the
// configured id when set, otherwise an existing assistant with the persona's
// name, otherwise a newly created one.
func EnsureAssistant(ctx context.Context, api AssistantsAPI, assistantID string, persona Persona) (string, error) {
	if assistantID != "" {
		a, err := api.RetrieveAssistant(ctx, assistantID)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve assistant %s: %w", assistantID, err)
		}
		logger.Infof("Using assistant %s (%s)", a.ID, a.Model)
		return a.ID, nil
	}

	limit := 100
	list, err := api.ListAssistants(ctx, &limit, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list assistants: %w", err)
	}
	for _, a := range list.Assistants {
		if a.Name != nil && *a.Name == persona.Name {
			logger.Infof("Found assistant %s named %s", a.ID, persona.Name)
			return a.ID, nil
		}
	}

	a, err := api.CreateAssistant(ctx, persona.Request(""))
	if err != nil {
		return "", fmt.Errorf("failed to create assistant %s: %w", persona.Name, err)
	}
	logger.Successf("Created assistant %s named %s", a.ID, persona.Name)
	return a.ID, nil
}
