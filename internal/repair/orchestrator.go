package repair

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tensor-ninja/agent-fix/internal/config"
	"github.com/tensor-ninja/agent-fix/internal/llm"
	"github.com/tensor-ninja/agent-fix/internal/sandbox"
)

// missingModulePattern matches the interpreter diagnostic for an import
// of a package that is not installed.
var missingModulePattern = regexp.MustCompile(`No module named '([^']+)'`)

const sandboxOutputLimit = 4000

// Executor runs candidate fixes and installs packages in isolation.
type Executor interface {
	RunTest(ctx context.Context, code string, tests []string) (sandbox.Result, error)
	InstallDependency(ctx context.Context, name string) (sandbox.Result, error)
}

// Metrics records repair run outcomes. Implemented by observability.Metrics.
type Metrics interface {
	RecordRepairRun(outcome string, duration time.Duration, attempts int)
	RecordSandboxRun(kind string, success bool)
}

// Request describes a single repair problem.
type Request struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Context     []ContextSnippet `json:"context,omitempty"`
	Model       string           `json:"model,omitempty"`
}

// Orchestrator drives the model/sandbox loop for one repair request at a
// time. It is safe for concurrent use; each Run carries its own state.
type Orchestrator struct {
	registry *llm.Registry
	executor Executor
	cfg      config.RepairConfig
	logger   *zap.Logger
	metrics  Metrics
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches a metrics sink to the orchestrator.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator wires a repair loop over the given model registry and
// sandbox executor.
func NewOrchestrator(registry *llm.Registry, executor Executor, cfg config.RepairConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	o := &Orchestrator{
		registry: registry,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the repair loop and streams progress events. The channel is
// closed after the terminal outcome event; cancelling the context aborts
// the run with a failure outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

// run is the state machine. Attempts count model turns that failed to
// advance the fix: parse failures, unrecognized or missing actions, failed
// test executions, and failed installations. A successful installation,
// including the automatic recovery path, does not consume an attempt.
func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- Event) {
	start := time.Now()
	attempts := 0
	finish := func(ev Event, outcome string) {
		events <- ev
		if o.metrics != nil {
			o.metrics.RecordRepairRun(outcome, time.Since(start), attempts)
		}
	}

	provider, route, err := o.registry.Resolve(firstNonEmpty(req.Model, o.cfg.Model))
	if err != nil {
		events <- Event{Kind: EventError, Text: fmt.Sprintf("resolve model: %v", err)}
		finish(failureOutcomeEvent(attempts, err.Error()), "error")
		return
	}

	log := o.logger.With(zap.String("model", route.Model), zap.String("provider", provider.Name()))
	log.Info("repair run started", zap.String("title", req.Title))

	conversation := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: buildSystemPrompt()},
		{Role: llm.RoleUser, Content: buildUserPrompt(req.Title, req.Description, req.Context)},
	}

	for attempts < o.cfg.MaxAttempts {
		if ctx.Err() != nil {
			finish(failureOutcomeEvent(attempts, ctx.Err().Error()), "cancelled")
			return
		}
		events <- attemptEvent(attempts+1, o.cfg.MaxAttempts)

		resp, err := provider.Chat(ctx, llm.ChatRequest{
			Model:       route.Model,
			Messages:    conversation,
			Tools:       ActionSchemas(),
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
		})
		if err != nil {
			log.Error("model request failed", zap.Error(err))
			events <- Event{Kind: EventError, Text: fmt.Sprintf("model request failed: %v", err)}
			finish(failureOutcomeEvent(attempts, err.Error()), "error")
			return
		}
		conversation = append(conversation, resp.Message)
		if text := strings.TrimSpace(resp.Message.Content); text != "" {
			events <- Event{Kind: EventNarration, Text: text}
		}

		if len(resp.Message.ToolCalls) == 0 {
			attempts++
			events <- noActionEvent()
			conversation = append(conversation, llm.ChatMessage{
				Role:    llm.RoleUser,
				Content: "Respond by calling one of the available tools.",
			})
			continue
		}

		call := resp.Message.ToolCalls[0]
		// The loop processes one action per turn. Extra parallel calls still
		// need a result turn each, or the next request is rejected upstream.
		for _, extra := range resp.Message.ToolCalls[1:] {
			conversation = appendToolResult(conversation, extra, "Only one action is processed per turn. Re-issue this call after seeing the first result.")
		}
		switch call.Function.Name {
		case ActionExecuteAndTest:
			args, err := ParseExecuteAndTest(call.Function.Arguments)
			if err != nil {
				attempts++
				events <- invalidActionEvent(err)
				conversation = appendToolResult(conversation, call, fmt.Sprintf("Invalid action payload: %v", err))
				continue
			}
			events <- testStartEvent()
			result := o.runTest(ctx, args)
			if result.Success {
				conversation = appendToolResult(conversation, call, "All tests passed.")
				events <- testsPassedEvent()
				finish(successOutcomeEvent(args.Code, args.Tests, attempts), "success")
				return
			}
			if dep := missingDependency(result.Output); dep != "" {
				conversation = appendToolResult(conversation, call, testFailureReport(result.Output))
				events <- autoInstallEvent(dep)
				install := o.install(ctx, dep)
				if install.Success {
					events <- installedEvent(dep)
					conversation = append(conversation, llm.ChatMessage{
						Role:    llm.RoleUser,
						Content: buildRetryAfterInstallPrompt(dep),
					})
					continue
				}
				attempts++
				events <- installFailedEvent(dep)
				conversation = append(conversation, llm.ChatMessage{
					Role:    llm.RoleUser,
					Content: fmt.Sprintf("Automatic installation of %q failed:\n%s\nWork around the missing dependency or fix the import.", dep, truncateForPrompt(install.Output, sandboxOutputLimit)),
				})
				continue
			}
			attempts++
			events <- testsFailedEvent()
			conversation = appendToolResult(conversation, call, testFailureReport(result.Output))

		case ActionInstallDependency:
			args, err := ParseInstallDependency(call.Function.Arguments)
			if err != nil {
				attempts++
				events <- invalidActionEvent(err)
				conversation = appendToolResult(conversation, call, fmt.Sprintf("Invalid action payload: %v", err))
				continue
			}
			events <- installStartEvent(args.Dependency)
			result := o.install(ctx, args.Dependency)
			if result.Success {
				events <- installedEvent(args.Dependency)
				conversation = appendToolResult(conversation, call, fmt.Sprintf("Dependency %q installed. Continue with the fix and verify it with execute_and_test.", args.Dependency))
				continue
			}
			attempts++
			events <- installFailedEvent(args.Dependency)
			conversation = appendToolResult(conversation, call, fmt.Sprintf("Installation of %q failed:\n%s", args.Dependency, truncateForPrompt(result.Output, sandboxOutputLimit)))

		default:
			attempts++
			events <- unknownActionEvent(call.Function.Name)
			conversation = appendToolResult(conversation, call, fmt.Sprintf("Unrecognized action %q. Use execute_and_test or install_dependency.", call.Function.Name))
		}
	}

	log.Warn("repair run exhausted", zap.Int("attempts", attempts))
	finish(failureOutcomeEvent(attempts, "attempt limit reached"), "exhausted")
}

// runTest folds executor infrastructure errors into a failed result so the
// loop treats them like any other failing run.
func (o *Orchestrator) runTest(ctx context.Context, args ExecuteAndTestArgs) sandbox.Result {
	result, err := o.executor.RunTest(ctx, args.Code, args.Tests)
	if err != nil {
		result = sandbox.Result{Success: false, Output: fmt.Sprintf("execution error: %v", err)}
	}
	if o.metrics != nil {
		o.metrics.RecordSandboxRun("test", result.Success)
	}
	return result
}

func (o *Orchestrator) install(ctx context.Context, dep string) sandbox.Result {
	result, err := o.executor.InstallDependency(ctx, dep)
	if err != nil {
		result = sandbox.Result{Success: false, Output: fmt.Sprintf("install error: %v", err)}
	}
	if o.metrics != nil {
		o.metrics.RecordSandboxRun("install", result.Success)
	}
	return result
}

// missingDependency extracts the module name from a missing-module
// diagnostic, or returns "" when the output carries none.
func missingDependency(output string) string {
	m := missingModulePattern.FindStringSubmatch(output)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

func testFailureReport(output string) string {
	return "Tests failed:\n" + truncateForPrompt(output, sandboxOutputLimit)
}

// appendToolResult records the result turn for an action request. Every
// action request receives exactly one result turn.
func appendToolResult(conversation []llm.ChatMessage, call llm.ToolCall, content string) []llm.ChatMessage {
	return append(conversation, llm.ChatMessage{
		Role:       llm.RoleTool,
		Name:       call.Function.Name,
		ToolCallID: call.ID,
		Content:    content,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
