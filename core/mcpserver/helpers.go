package mcpserver

import (
	"encoding/json"
	"fmt"
	"math"

	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxExactInt is the largest magnitude a float64 holds without losing integers.
const maxExactInt = 1 << 53

// intArg extracts an optional integer argument. JSON numbers arrive as
// float64; fractional, out-of-range and non-numeric values are rejected.
func intArg(req mcp.CallToolRequest, key string) (int, bool, error) {
	raw, present := req.GetArguments()[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	value, ok := raw.(float64)
	if !ok {
		return 0, false, invalidArgument(key, "must be a number, got %T", raw)
	}
	if value != math.Trunc(value) || math.Abs(value) > maxExactInt {
		return 0, false, invalidArgument(key, "must be a whole number, got %v", value)
	}
	return int(value), true, nil
}

func invalidArgument(key string, format string, args ...any) error {
	return ctxerrors.Wrap(
		fmt.Errorf(key+" "+format, args...),
		ctxerrors.CategoryInvalidInput, "invalid_argument", "pass "+key+" as an integer token count", false,
	)
}

func boolArg(req mcp.CallToolRequest, key string, defaultValue bool) bool {
	value, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultValue
	}
	return value
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

// errorResult reports a failed operation as a tool error carrying the
// error code and hint, never as a protocol error.
func errorResult(err error) (*mcp.CallToolResult, error) {
	message := err.Error()
	if code := ctxerrors.CodeOf(err); code != "" {
		message = fmt.Sprintf("%s: %s", code, message)
	}
	if hint := ctxerrors.HintOf(err); hint != "" {
		message += "\nhint: " + hint
	}
	return mcp.NewToolResultError(message), nil
}
