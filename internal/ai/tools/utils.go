package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormatOutput turns a tool result into the string submitted to the run:
// strings pass through, numbers use their decimal form and anything else is
// encoded as JSON.
func FormatOutput(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case json.RawMessage:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case fmt.Stringer:
		return val.String(), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeArgs(tool, args string, dst any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), dst); err != nil {
		return &InvalidArgumentsError{Tool: tool, Err: err}
	}
	return nil
}
