package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tensor-ninja/agent-fix/internal/config"
)

// Markers printed by the assembled test program. Success is decided by
// marker presence in captured output, not by exit code alone.
const (
	AllTestsPassedMarker = "AGENTFIX_ALL_TESTS_PASSED"
	TestFailedMarker     = "AGENTFIX_TEST_FAILED"
)

// Result carries the outcome of one sandboxed operation.
type Result struct {
	Success bool
	Output  string
}

// Executor runs generated code and dependency installs in isolated
// subprocesses with hard timeouts.
type Executor struct {
	pythonBin      string
	pipBin         string
	workDir        string
	testTimeout    time.Duration
	installTimeout time.Duration
}

// New builds an executor from sandbox configuration.
func New(cfg config.SandboxConfig) *Executor {
	return &Executor{
		pythonBin:      cfg.PythonBin,
		pipBin:         cfg.PipBin,
		workDir:        cfg.WorkDir,
		testTimeout:    time.Duration(cfg.TestTimeoutSeconds) * time.Second,
		installTimeout: time.Duration(cfg.InstallTimeoutSeconds) * time.Second,
	}
}

// RunTest assembles the candidate code with guarded test statements, executes
// it in an isolated process, and reports success only when every test
// completed without fault. The scratch file backing the run is removed on
// every exit path. Process crashes and timeouts are folded into a failed
// Result, not escalated as errors.
func (e *Executor) RunTest(ctx context.Context, code string, tests []string) (Result, error) {
	program := AssembleProgram(code, tests)

	file, err := os.CreateTemp(e.workDir, "agentfix-run-*.py")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.WriteString(program); err != nil {
		file.Close()
		return Result{}, fmt.Errorf("write scratch file: %w", err)
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("close scratch file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.testTimeout)
	defer cancel()

	stdout, stderr, runErr := e.run(ctx, e.pythonBin, file.Name())

	combined := combineOutput(stdout, stderr)
	if runErr != nil && ctx.Err() == context.DeadlineExceeded {
		combined = combineOutput(combined, fmt.Sprintf("execution timed out after %s", e.testTimeout))
	}

	if strings.Contains(combined, AllTestsPassedMarker) {
		return Result{Success: true, Output: stdout}, nil
	}
	return Result{Success: false, Output: combined}, nil
}

// InstallDependency installs a single package in isolation. Any non-empty
// stderr output is treated as failure even when the process exits zero;
// benign warnings flagged as failures are accepted in exchange for never
// missing a real failure silently.
func (e *Executor) InstallDependency(ctx context.Context, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{}, fmt.Errorf("dependency name is required")
	}
	if strings.HasPrefix(name, "-") {
		return Result{}, fmt.Errorf("dependency name %q must not start with a flag prefix", name)
	}

	ctx, cancel := context.WithTimeout(ctx, e.installTimeout)
	defer cancel()

	stdout, stderr, runErr := e.run(ctx, e.pipBin, "install", name)

	combined := combineOutput(stdout, stderr)
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			combined = combineOutput(combined, fmt.Sprintf("install timed out after %s", e.installTimeout))
		}
		return Result{Success: false, Output: combined}, nil
	}
	if strings.TrimSpace(stderr) != "" {
		return Result{Success: false, Output: combined}, nil
	}
	return Result{Success: true, Output: stdout}, nil
}

func (e *Executor) run(ctx context.Context, bin string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// AssembleProgram wraps each test statement in a guard that reports the
// fault with a distinguishing marker and exits non-zero; the success marker
// is printed only after every statement completes.
func AssembleProgram(code string, tests []string) string {
	var b strings.Builder
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\nimport sys\n")
	for _, test := range tests {
		b.WriteString("\ntry:\n")
		b.WriteString(indent(test))
		b.WriteString("except Exception as e:\n")
		fmt.Fprintf(&b, "    print(%q, e)\n", TestFailedMarker+":")
		b.WriteString("    sys.exit(1)\n")
	}
	fmt.Fprintf(&b, "\nprint(%q)\n", AllTestsPassedMarker)
	return b.String()
}

func indent(stmt string) string {
	lines := strings.Split(strings.TrimRight(stmt, "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func combineOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
