package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensor-ninja/agent-fix/internal/config"
)

// writeStub writes an executable shell script standing in for python/pip.
func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func newExecutor(t *testing.T, pythonBin, pipBin string) (*Executor, string) {
	t.Helper()
	workDir := t.TempDir()
	e := New(config.SandboxConfig{
		PythonBin:             pythonBin,
		PipBin:                pipBin,
		WorkDir:               workDir,
		TestTimeoutSeconds:    2,
		InstallTimeoutSeconds: 2,
	})
	return e, workDir
}

func TestRunTestSucceedsOnMarker(t *testing.T) {
	bins := t.TempDir()
	python := writeStub(t, bins, "python", `echo "`+AllTestsPassedMarker+`"`)
	e, workDir := newExecutor(t, python, "unused")

	res, err := e.RunTest(context.Background(), "x = 1", []string{"assert x == 1"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Output, AllTestsPassedMarker)

	requireNoScratchFiles(t, workDir)
}

func TestRunTestFailsWithoutMarker(t *testing.T) {
	bins := t.TempDir()
	python := writeStub(t, bins, "python", `echo "`+TestFailedMarker+`: assertion failed"; exit 1`)
	e, workDir := newExecutor(t, python, "unused")

	res, err := e.RunTest(context.Background(), "x = 1", []string{"assert x == 2"})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Output, TestFailedMarker)

	requireNoScratchFiles(t, workDir)
}

func TestRunTestDoesNotTrustExitCodeAlone(t *testing.T) {
	bins := t.TempDir()
	// exits zero but never prints the success marker
	python := writeStub(t, bins, "python", `echo "looks fine"`)
	e, _ := newExecutor(t, python, "unused")

	res, err := e.RunTest(context.Background(), "x = 1", []string{"assert x == 1"})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestRunTestTimesOut(t *testing.T) {
	bins := t.TempDir()
	python := writeStub(t, bins, "python", `sleep 30`)
	e, workDir := newExecutor(t, python, "unused")

	res, err := e.RunTest(context.Background(), "while True: pass", nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Output, "timed out")

	requireNoScratchFiles(t, workDir)
}

func TestRunTestCleansScratchFileOnCrash(t *testing.T) {
	bins := t.TempDir()
	python := writeStub(t, bins, "python", `exit 137`)
	e, workDir := newExecutor(t, python, "unused")

	_, err := e.RunTest(context.Background(), "boom", nil)
	require.NoError(t, err)
	requireNoScratchFiles(t, workDir)
}

func TestInstallDependencySuccess(t *testing.T) {
	bins := t.TempDir()
	pip := writeStub(t, bins, "pip", `echo "Successfully installed $2"`)
	e, _ := newExecutor(t, "unused", pip)

	res, err := e.InstallDependency(context.Background(), "requests")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Output, "requests")
}

func TestInstallDependencyStderrMeansFailure(t *testing.T) {
	bins := t.TempDir()
	// exit code zero, but diagnostics on stderr
	pip := writeStub(t, bins, "pip", `echo "ok"; echo "WARNING: something" >&2`)
	e, _ := newExecutor(t, "unused", pip)

	res, err := e.InstallDependency(context.Background(), "requests")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Output, "WARNING")
}

func TestInstallDependencyNonZeroExit(t *testing.T) {
	bins := t.TempDir()
	pip := writeStub(t, bins, "pip", `echo "No matching distribution" >&2; exit 1`)
	e, _ := newExecutor(t, "unused", pip)

	res, err := e.InstallDependency(context.Background(), "no-such-package")
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestInstallDependencyRejectsBadNames(t *testing.T) {
	e, _ := newExecutor(t, "unused", "unused")

	_, err := e.InstallDependency(context.Background(), "")
	require.Error(t, err)

	_, err = e.InstallDependency(context.Background(), "--upgrade")
	require.Error(t, err)
}

func TestAssembleProgramGuardsEveryTest(t *testing.T) {
	program := AssembleProgram("def add(a, b):\n    return a + b", []string{
		"assert add(1, 2) == 3",
		"assert add(0, 0) == 0",
	})

	require.Equal(t, 2, strings.Count(program, "try:"))
	require.Equal(t, 2, strings.Count(program, "except Exception as e:"))
	require.Equal(t, 2, strings.Count(program, TestFailedMarker))
	require.Contains(t, program, "sys.exit(1)")

	// success marker only after all guards
	require.Equal(t, 1, strings.Count(program, AllTestsPassedMarker))
	require.Greater(t, strings.Index(program, AllTestsPassedMarker), strings.LastIndex(program, "except"))
}

func TestAssembleProgramIndentsMultilineTests(t *testing.T) {
	program := AssembleProgram("x = 1", []string{"y = x\nassert y == 1"})
	require.Contains(t, program, "    y = x\n    assert y == 1")
}

func requireNoScratchFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, strings.HasPrefix(entry.Name(), "agentfix-run-"), "scratch file %s left behind", entry.Name())
	}
}
