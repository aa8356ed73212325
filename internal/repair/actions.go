package repair

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tensor-ninja/agent-fix/internal/llm"
)

// Action names the reasoning service may invoke.
const (
	ActionExecuteAndTest    = "execute_and_test"
	ActionInstallDependency = "install_dependency"
)

// ExecuteAndTestArgs is the validated payload of an execute_and_test action.
type ExecuteAndTestArgs struct {
	Code  string   `json:"code"`
	Tests []string `json:"tests"`
}

// InstallDependencyArgs is the validated payload of an install_dependency action.
type InstallDependencyArgs struct {
	Dependency string `json:"dependency"`
}

// ActionSchemas declares the two actions offered to the model on every turn.
func ActionSchemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        ActionExecuteAndTest,
			Description: "Execute the proposed fix together with test statements in an isolated runtime and report whether every test passes.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"code": {"type": "string", "description": "Complete candidate fix as runnable source code"},
					"tests": {"type": "array", "items": {"type": "string"}, "description": "Ordered test statements, each independently assertable"}
				},
				"required": ["code", "tests"]
			}`),
		},
		{
			Name:        ActionInstallDependency,
			Description: "Install a single named package into the isolated runtime before re-running the fix.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"dependency": {"type": "string", "description": "Package name to install"}
				},
				"required": ["dependency"]
			}`),
		},
	}
}

// ParseExecuteAndTest validates and decodes an execute_and_test payload.
func ParseExecuteAndTest(raw json.RawMessage) (ExecuteAndTestArgs, error) {
	var args ExecuteAndTestArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return ExecuteAndTestArgs{}, fmt.Errorf("decode %s payload: %w", ActionExecuteAndTest, err)
	}
	if strings.TrimSpace(args.Code) == "" {
		return ExecuteAndTestArgs{}, fmt.Errorf("%s: code is required and must be a non-empty string", ActionExecuteAndTest)
	}
	if len(args.Tests) == 0 {
		return ExecuteAndTestArgs{}, fmt.Errorf("%s: tests is required and must be a non-empty array", ActionExecuteAndTest)
	}
	for i, test := range args.Tests {
		if strings.TrimSpace(test) == "" {
			return ExecuteAndTestArgs{}, fmt.Errorf("%s: tests[%d] must be a non-empty string", ActionExecuteAndTest, i)
		}
	}
	return args, nil
}

// ParseInstallDependency validates and decodes an install_dependency payload.
func ParseInstallDependency(raw json.RawMessage) (InstallDependencyArgs, error) {
	var args InstallDependencyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return InstallDependencyArgs{}, fmt.Errorf("decode %s payload: %w", ActionInstallDependency, err)
	}
	if strings.TrimSpace(args.Dependency) == "" {
		return InstallDependencyArgs{}, fmt.Errorf("%s: dependency is required and must be a non-empty string", ActionInstallDependency)
	}
	return args, nil
}
