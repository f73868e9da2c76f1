package tools

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"gamemaster/internal/logger"
)

const (
	maxDiceSides = 1000
	maxDiceCount = 100
)

type RollDiceArgs struct {
	D int `json:"d"` // sides per die
	N int `json:"n"` // number of dice
}

// DiceTool rolls n dice of d sides and answers with the total.
type DiceTool struct {
	BaseTool

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDiceTool() *DiceTool {
	return NewDiceToolWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewDiceToolWithSource lets tests pin the random sequence.
func NewDiceToolWithSource(src rand.Source) *DiceTool {
	params := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"d": {
				Type:        jsonschema.Integer,
				Description: "Number of sides of each die, e.g. 20 for a d20",
			},
			"n": {
				Type:        jsonschema.Integer,
				Description: "How many dice to roll",
			},
		},
		Required: []string{"d", "n"},
	}

	return &DiceTool{
		BaseTool: BaseTool{
			ToolName:        "roll-dice",
			ToolDescription: "Roll n dice with d sides each and return the sum of all rolls",
			ToolParameters:  params,
		},
		rnd: rand.New(src),
	}
}

// Roll returns the individual rolls, each in [1, d].
func (t *DiceTool) Roll(d, n int) ([]int, error) {
	if d < 2 || d > maxDiceSides {
		return nil, fmt.Errorf("dice must have between 2 and %d sides, got %d", maxDiceSides, d)
	}
	if n < 1 || n > maxDiceCount {
		return nil, fmt.Errorf("can roll between 1 and %d dice, got %d", maxDiceCount, n)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rolls := make([]int, n)
	for i := range rolls {
		rolls[i] = t.rnd.Intn(d) + 1
	}
	return rolls, nil
}

func (t *DiceTool) Execute(ctx context.Context, args string) (any, error) {
	var params RollDiceArgs
	if err := decodeArgs(t.Name(), args, &params); err != nil {
		return nil, err
	}

	rolls, err := t.Roll(params.D, params.N)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, r := range rolls {
		total += r
	}
	logger.AIDebugf("Rolled %dd%d: %v = %d", params.N, params.D, rolls, total)
	return total, nil
}
